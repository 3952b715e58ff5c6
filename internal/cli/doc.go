// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the privatecode command line: the cobra command
// tree, the interactive REPL, terminal confirmation of plan steps and the
// styled rendering of plans, diffs and model replies.
//
// # Commands
//
//	privatecode [chat]              Interactive assistant (default)
//	privatecode plan <request...>   Generate, review and execute a plan
//	privatecode exec <plan.json>    Execute a plan file
//	privatecode resume <id|path>    Continue a persisted plan
//	privatecode history             List recorded plan runs
//	privatecode export <id|path>    Write a Markdown, JSON or HTML run report
//	privatecode classify <command>  Show a command's risk tier
//	privatecode show <path[:range]> Print a file or line range
//	privatecode search <query>      Web search
//	privatecode fetch <url>         Fetch a page as readable text
//	privatecode models              List installed models
//	privatecode config ...          Show, get or set configuration
//
// # REPL
//
// Plain input is a chat turn; [file:range] and [url] references are
// expanded into context. Prefixed input (search:, edit:, run:, create:,
// plan:) dispatches to the matching handler. Type "help" for the full list.
package cli
