// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter renders a plan run as one self-contained HTML page.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export renders p as HTML with embedded CSS and inline-highlighted code.
func (e *HTMLExporter) Export(p *plan.Plan) ([]byte, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	title := html.EscapeString(firstLine(p.Description))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", title)
	sb.WriteString("    <meta name=\"generator\" content=\"privatecode\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", p.CreatedAt.Format(time.RFC3339))
	sb.WriteString(reportCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", theme)

	sb.WriteString("<header class=\"header\">\n")
	fmt.Fprintf(&sb, "  <h1>%s</h1>\n  <div class=\"metadata\">\n", title)
	fmt.Fprintf(&sb, "    <span><strong>Status:</strong> %s</span>\n", html.EscapeString(p.Status.String()))
	if p.Model != "" {
		fmt.Fprintf(&sb, "    <span><strong>Model:</strong> %s</span>\n", html.EscapeString(p.Model))
	}
	fmt.Fprintf(&sb, "    <span><strong>Created:</strong> %s</span>\n", formatTimestamp(p.CreatedAt))
	fmt.Fprintf(&sb, "    <span><strong>Progress:</strong> %s</span>\n", tally(p))
	sb.WriteString("  </div>\n</header>\n<main>\n")

	if a := strings.TrimSpace(p.Analysis); a != "" {
		fmt.Fprintf(&sb, "<section class=\"analysis\"><h2>Analysis</h2><p>%s</p></section>\n",
			strings.ReplaceAll(html.EscapeString(a), "\n", "<br>"))
	}

	for _, r := range rows(p, e.options.IncludeDetails) {
		sb.WriteString(e.renderStep(r, theme))
	}

	sb.WriteString("</main>\n<footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "  <p>Exported from <strong>privatecode</strong> on %s</p>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</footer>\n</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderStep(r stepRow, theme string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<section class=\"step outcome-%s\">\n", html.EscapeString(r.Outcome))
	fmt.Fprintf(&sb, "  <h3><span class=\"num\">%d</span> %s <span class=\"badge\">%s</span></h3>\n",
		r.Number, html.EscapeString(r.Summary), html.EscapeString(outcomeLabel(r.Outcome)))
	if r.Step.Rationale != "" {
		fmt.Fprintf(&sb, "  <p class=\"rationale\">%s</p>\n", html.EscapeString(r.Step.Rationale))
	}
	if r.Step.HasPattern() {
		sb.WriteString("  <div class=\"label\">Pattern</div>\n")
		sb.WriteString(highlight(*r.Step.Pattern, "", theme))
	}
	if r.Step.Kind.IsCommand() {
		sb.WriteString("  <div class=\"label\">Command</div>\n")
		sb.WriteString(highlight(r.Step.Target, "cmd.sh", theme))
	}
	if r.Step.Content != nil {
		label, lang := "Content", r.Step.Target
		if r.Step.Kind == plan.KindVerifyOutput {
			label, lang = "Expected output", ""
		}
		fmt.Fprintf(&sb, "  <div class=\"label\">%s</div>\n", label)
		sb.WriteString(highlight(*r.Step.Content, lang, theme))
	}
	if r.Detail != "" {
		fmt.Fprintf(&sb, "  <div class=\"label\">Detail <span class=\"when\">%s</span></div>\n", formatTimestamp(r.When))
		fmt.Fprintf(&sb, "  <pre class=\"detail\">%s</pre>\n", html.EscapeString(r.Detail))
	}
	sb.WriteString("</section>\n")
	return sb.String()
}

// highlight renders code with inline styles, picking the lexer from the
// file name. Anything chroma cannot handle falls back to an escaped <pre>.
func highlight(code, filename, theme string) string {
	lexer := lexers.Match(filepath.Base(filename))
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if theme == "light" {
		styleName = "github"
	}
	style := styles.Get(styleName)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return fmt.Sprintf("  <pre>%s</pre>\n", html.EscapeString(code))
	}
	var out strings.Builder
	formatter := chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))
	if err := formatter.Format(&out, style, iterator); err != nil {
		return fmt.Sprintf("  <pre>%s</pre>\n", html.EscapeString(code))
	}
	return "  " + out.String() + "\n"
}

const reportCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Fira Code", "Source Code Pro", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
            --text-primary: #c0caf5; --text-muted: #565f89;
            --ok: #9ece6a; --fail: #f7768e; --skip: #e0af68;
        }
        .light-theme {
            --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
            --text-primary: #24292e; --text-muted: #6a737d;
            --ok: #22863a; --fail: #d73a49; --skip: #b08800;
        }
        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
        .container { max-width: 960px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 28px 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 26px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; }
        main { padding: 24px 32px; }
        .analysis { margin-bottom: 24px; }
        h2 { font-size: 18px; margin-bottom: 8px; }
        .step { border-left: 4px solid var(--text-muted); padding: 8px 16px; margin-bottom: 20px; }
        .step.outcome-succeeded { border-color: var(--ok); }
        .step.outcome-failed { border-color: var(--fail); }
        .step.outcome-skipped { border-color: var(--skip); }
        .step h3 { font-size: 16px; }
        .num { color: var(--text-muted); margin-right: 6px; }
        .badge { font-family: var(--font-mono); font-size: 12px; color: var(--text-muted); }
        .rationale { font-style: italic; color: var(--text-muted); }
        .label { font-size: 12px; text-transform: uppercase; color: var(--text-muted); margin-top: 8px; }
        .when { text-transform: none; }
        pre { font-family: var(--font-mono); font-size: 13px; padding: 12px; border-radius: 6px; overflow-x: auto; background: var(--bg-primary); }
        .footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); border-top: 1px solid var(--bg-tertiary); }
    </style>
`
