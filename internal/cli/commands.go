// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot subcommands.

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	ctxmention "github.com/Legorobotdude/PrivateCode/internal/context"
	"github.com/Legorobotdude/PrivateCode/internal/export"
	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
	"github.com/Legorobotdude/PrivateCode/internal/search"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// =============================================================================
// CHAT
// =============================================================================

func newChatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive assistant (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, opts)
		},
	}
}

// =============================================================================
// PLANS
// =============================================================================

func newPlanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "plan <request...>",
		Aliases: []string{"vibecode"},
		Short:   "Generate a plan for a request, review it, then execute it",
		Example: `  privatecode plan add a --verbose flag to [cmd/main.go]
  privatecode plan "write tests for [internal/parser.go:10-80]"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			ctx, stop := interruptible(cmd)
			defer stop()
			cfg := app.Config()
			return app.runPlanFlow(ctx, strings.Join(args, " "), cfg.Model.Name,
				cfg.Display.ShowThinking, app.thinkingOrDefault(0))
		},
	}
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <plan.json>",
		Short: "Execute a plan file",
		Long: `Execute a plan file. The file may be a plan saved by privatecode or a
hand-written JSON array of steps. The run is recorded like any other plan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			p, err := plan.LoadFile(args[0])
			if err != nil {
				return err
			}
			p.Stamp(time.Now())
			if p.Description == "" {
				p.Description = "exec " + args[0]
			}
			idx, err := app.Index()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("Plan %s (%d steps)", p.ID, len(p.Steps))))
			fmt.Fprint(out, app.render.PlanTable(p))

			ctx, stop := interruptible(cmd)
			defer stop()
			return app.executePlan(ctx, idx, p, app.Config().Model.Name)
		},
	}
}

func newResumeCommand(opts *rootOptions) *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:   "resume <id|path>",
		Short: "Continue a persisted plan from its first pending step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			idx, err := app.Index()
			if err != nil {
				return err
			}
			p, _, err := idx.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch p.Status {
			case plan.StatusCompleted:
				fmt.Fprintf(out, "Plan %s is already completed.\n", p.ID)
				fmt.Fprint(out, app.render.PlanTable(p))
				return nil
			case plan.StatusAborted:
				if !reopen {
					return &UsageError{
						Message: fmt.Sprintf("plan %s was aborted; pass --reopen to continue it", p.ID),
						Example: "privatecode resume --reopen " + p.ID,
					}
				}
				if err := p.Reopen(); err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "%s %s  %s\n", TitleStyle.Render("Resuming"), p.ID, DimStyle.Render(p.Progress()+" steps done"))
			fmt.Fprint(out, app.render.PlanTable(p))

			ctx, stop := interruptible(cmd)
			defer stop()
			return app.executePlan(ctx, idx, p, "")
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "continue a plan that was aborted")
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		rebuild bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded plan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			idx, err := app.Index()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if rebuild {
				n, err := idx.Rebuild(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Indexed %d plan(s).\n", n)
			}

			runs, err := idx.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No plans recorded yet.")
				return nil
			}

			width := app.render.width
			descWidth := width - 56
			if descWidth < 16 {
				descWidth = 16
			}
			fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("%-26s %-12s %-7s %-16s %s", "ID", "STATUS", "DONE", "UPDATED", "REQUEST")))
			for _, r := range runs {
				done := fmt.Sprintf("%d/%d", r.Steps-r.Pending(), r.Steps)
				status := statusStyle(r.Status).Render(runewidth.FillRight(r.Status.String(), 12))
				fmt.Fprintf(out, "%-26s %s %-7s %-16s %s\n",
					r.ID, status, done,
					r.Updated.Local().Format("2006-01-02 15:04"),
					util.TruncateWidth(util.FirstLine(r.Description), descWidth))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the index from the plan files first")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		format   string
		output   string
		theme    string
		summary  bool
		toStdout bool
	)
	cmd := &cobra.Command{
		Use:   "export <id|path>",
		Short: "Write a report of a plan run",
		Example: `  privatecode export 20250102-150405-1a2b3c4d
  privatecode export --format html -o reports 20250102-150405-1a2b3c4d
  privatecode export --format json --stdout plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			idx, err := app.Index()
			if err != nil {
				return err
			}
			p, _, err := idx.Load(args[0])
			if err != nil {
				return err
			}

			eopts := export.DefaultOptions()
			eopts.OutputDir = output
			eopts.Theme = theme
			eopts.IncludeDetails = !summary
			exporter, err := export.ForFormat(format, eopts)
			if err != nil {
				return &UsageError{Message: err.Error(), Example: "privatecode export --format md " + p.ID}
			}

			out := cmd.OutOrStdout()
			if toStdout {
				data, err := exporter.Export(p)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			path, err := export.ToFile(p, exporter, eopts)
			if err != nil {
				return err
			}
			app.log.Info("plan exported", "id", p.ID, "format", format, "path", path)
			fmt.Fprintf(out, "%s %s\n", SuccessStyle.Render("Exported"), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "report format: md, json or html")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to write the report to")
	cmd.Flags().StringVar(&theme, "theme", "dark", "HTML theme: dark or light")
	cmd.Flags().BoolVar(&summary, "summary", false, "keep only the first line of each step result")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "print the report instead of writing a file")
	return cmd
}

// =============================================================================
// INSPECTION
// =============================================================================

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <command...>",
		Short: "Show how a shell command would be rated before running",
		Example: `  privatecode classify git status
  privatecode classify rm -rf build`,
		Args: cobra.MinimumNArgs(1),
		// The command being rated has flags of its own.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			command := strings.Join(args, " ")
			cls := app.classifier.Classify(command)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", TierBadge(cls.Tier), CommandStyle.Render(command))
			if cls.MatchedRule != "" {
				fmt.Fprintf(out, "%s%s\n", RenderLabel("Rule:"), cls.MatchedRule)
			}
			if cls.Category != "" {
				fmt.Fprintf(out, "%s%s\n", RenderLabel("Category:"), cls.Category)
			}
			if cls.Warning != "" {
				fmt.Fprintf(out, "%s%s\n", RenderLabel("Warning:"), cls.Warning)
			}
			if cls.Tier == safety.Dangerous {
				fmt.Fprintf(out, "%s%q\n", RenderLabel("Confirm with:"), app.Config().Execution.DangerousToken)
			}
			return nil
		},
	}
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <path[:range]>",
		Short: "Print a file or a line range of it",
		Example: `  privatecode show main.go:10-20
  privatecode show README.md:5-12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			content, err := app.expander.Resolver().ResolveRef(args[0])
			if err != nil {
				return err
			}
			path, _ := ctxmention.SplitRef(args[0])
			out := app.render.Highlight(content, path)
			fmt.Fprint(cmd.OutOrStdout(), out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}

// =============================================================================
// WEB
// =============================================================================

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var fetch int
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the web",
		Example: `  privatecode search golang context cancellation
  privatecode search --fetch 2 sqlite wal mode`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			ctx, stop := interruptible(cmd)
			defer stop()

			query := strings.Join(args, " ")
			var pages []search.Page
			err = withSpinner(app.streams.Err, app.streams.Interactive, "Searching...", func(func(string)) error {
				if fetch > 0 {
					var serr error
					pages, serr = app.web.SearchAndFetch(ctx, query, fetch)
					return serr
				}
				results, serr := app.web.Search(ctx, query)
				for _, r := range results {
					pages = append(pages, search.Page{Result: r})
				}
				return serr
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(pages) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, pg := range pages {
				fmt.Fprintf(out, "%s %s\n", TitleStyle.Render(fmt.Sprintf("%d.", i+1)), ValueStyle.Render(pg.Title))
				fmt.Fprintf(out, "   %s\n", DimStyle.Render(pg.URL))
				if pg.Snippet != "" {
					fmt.Fprintf(out, "   %s\n", util.TruncateWidth(pg.Snippet, app.render.width-4))
				}
				switch {
				case pg.Err != nil:
					fmt.Fprintf(out, "   %s %v\n", WarningStyle.Render("[WARN]"), pg.Err)
				case pg.Content != "":
					fmt.Fprintln(out, RenderSeparator(app.render.width))
					fmt.Fprintln(out, pg.Content)
					fmt.Fprintln(out, RenderSeparator(app.render.width))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&fetch, "fetch", 0, "also fetch the text of the top N results")
	return cmd
}

func newFetchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a web page as readable text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			ctx, stop := interruptible(cmd)
			defer stop()

			var text string
			err = withSpinner(app.streams.Err, app.streams.Interactive, "Fetching...", func(func(string)) error {
				var ferr error
				text, ferr = app.web.Fetch(ctx, args[0])
				return ferr
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

// =============================================================================
// MODELS
// =============================================================================

func newModelsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed in Ollama",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.appFor(cmd)
			if err != nil {
				return err
			}
			return listModels(cmd.Context(), app, cmd.OutOrStdout(), app.Config().Model.Name)
		},
	}
}
