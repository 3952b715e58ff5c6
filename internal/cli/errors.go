// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Legorobotdude/PrivateCode/internal/config"
	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/ollama"
	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/search"
	"github.com/Legorobotdude/PrivateCode/internal/store"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the model server or a web request failed
	ExitNetworkError = 5
	// ExitNotFoundError indicates a plan, file or model was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitAborted indicates the user cancelled a plan
	ExitAborted = 130
)

// UsageError reports bad arguments.
type UsageError struct {
	Message string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nExample: %s", e.Message, e.Example)
	}
	return e.Message
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var verr *config.ValidationError
	var berr *ollama.BackendError
	var serr *search.Error
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &verr):
		return ExitConfigError
	case errors.Is(err, plan.ErrAborted), errors.Is(err, context.Canceled):
		return ExitAborted
	case errors.As(err, &berr):
		switch berr.Kind {
		case ollama.KindTimeout:
			return ExitTimeoutError
		case ollama.KindModelNotFound:
			return ExitNotFoundError
		}
		return ExitNetworkError
	case errors.As(err, &serr):
		if serr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	case errors.Is(err, store.ErrRunNotFound), errors.Is(err, plan.ErrPlanNotFound), errors.Is(err, fileops.ErrNotFound):
		return ExitNotFoundError
	}
	return ExitGeneralError
}

// =============================================================================
// ERROR DISPLAY HELPERS
// =============================================================================

// DisplayError prints err with any recovery hint it carries.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())

	var berr *ollama.BackendError
	if errors.As(err, &berr) {
		if hint := berr.Hint(); hint != "" {
			fmt.Fprintf(w, "%s %s\n", DimStyle.Render("hint:"), hint)
		}
	}
	var merr *plan.MalformedPlanError
	if errors.As(err, &merr) {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("hint:"), "the model's plan could not be used; rephrase the request or try a larger model")
	}
}
