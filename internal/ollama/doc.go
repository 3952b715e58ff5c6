// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the local Ollama model server.
//
// The client is non-streaming for plan generation and model-assisted edits
// (Generate, Chat) and streaming for the interactive chat loop (ChatStream).
// Every failure is a *BackendError whose Kind tells the caller what went
// wrong and whose Hint tells the user what to do about it.
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    DefaultModel:  "qwen2.5-coder:14b",
//	    AllowFallback: true,
//	})
//	reply, err := client.Generate(ctx, prompt, "", 2*time.Minute)
//	if err != nil {
//	    var be *ollama.BackendError
//	    if errors.As(err, &be) {
//	        fmt.Println(be.Hint())
//	    }
//	}
//
// # Thinking blocks
//
// Reasoning models wrap their chain of thought in <think> tags.
// ProcessThinking hides or truncates those blocks for display.
package ollama
