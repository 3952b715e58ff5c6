// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM CHUNK
// =============================================================================

// StreamChunk is one piece of a streaming reply.
type StreamChunk struct {
	Content string
	Model   string

	Done               bool
	DoneReason         string
	TotalDuration      time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration
	PromptTokens       int
	CompletionTokens   int
}

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	model  string
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
}

// NewStreamReader creates a stream reader for a reply from model.
func NewStreamReader(r io.Reader, model string) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
		model:  model,
	}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled.
// A stream that ends without a done marker is a malformed response.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := s.readChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &BackendError{Kind: KindMalformedResponse, Model: s.model, Message: "stream ended before completion"}
			}
			return err
		}
		if chunk == nil {
			continue
		}

		callback(*chunk)
		if chunk.Done {
			return nil
		}
	}
}

// readChunk reads and parses a single line from the stream. Blank and
// undecodable lines yield a nil chunk.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var response ChatResponse
	if json.Unmarshal(line, &response) != nil {
		return nil, nil
	}
	if response.Error != "" {
		return nil, statusError(s.model, 0, response.Error)
	}
	if response.Model != "" {
		s.model = response.Model
	}

	content := response.Message.Content
	if content != "" {
		s.accumulator.WriteString(content)
		s.tokenCount++
	}

	chunk := &StreamChunk{
		Content:    content,
		Model:      s.model,
		Done:       response.Done,
		DoneReason: response.DoneReason,
	}

	// On completion, extract statistics
	if response.Done {
		chunk.TotalDuration = time.Duration(response.TotalDuration)
		chunk.PromptEvalDuration = time.Duration(response.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(response.EvalDuration)
		chunk.PromptTokens = response.PromptEvalCount
		chunk.CompletionTokens = response.EvalCount
	}
	return chunk, nil
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of content chunks received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds statistics collected during streaming.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time

	TotalDuration    time.Duration
	CompletionTokens int

	TTFT            time.Duration // time to first token
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{StartTime: time.Now()}
}

// Observe records a chunk; the first non-empty one sets TTFT and the
// final one fills in the server's counters.
func (s *StreamStats) Observe(chunk StreamChunk) {
	if s.FirstTokenTime.IsZero() && chunk.Content != "" {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
	if !chunk.Done {
		return
	}
	s.TotalDuration = chunk.TotalDuration
	if s.TotalDuration == 0 {
		s.TotalDuration = time.Since(s.StartTime)
	}
	s.CompletionTokens = chunk.CompletionTokens
	if chunk.EvalDuration > 0 {
		s.TokensPerSecond = float64(chunk.CompletionTokens) / chunk.EvalDuration.Seconds()
	}
}

// Format returns a one-line summary such as "3.2s | 120 tokens | 37.5 tok/s | TTFT 410ms".
func (s *StreamStats) Format() string {
	return fmt.Sprintf("%.1fs | %d tokens | %.1f tok/s | TTFT %dms",
		s.TotalDuration.Seconds(), s.CompletionTokens, s.TokensPerSecond, s.TTFT.Milliseconds())
}
