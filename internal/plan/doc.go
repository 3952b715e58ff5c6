// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan turns model output into validated, ordered steps and executes
// them one at a time with confirmation.
//
// # Key Types
//
//   - Plan: ordered steps plus an append-only result log
//   - Step: a tagged union on Kind (create_file, write_file, edit_file,
//     run_command, verify_output)
//   - Executor: the confirmation-gated state machine that runs a plan
//   - Generator: the two-phase analyse-then-plan prompt flow
//   - FileStore: JSON persistence under <state_dir>/plans
//
// # Usage
//
// Parse a model response:
//
//	p, err := plan.Parse(response)
//	var mpe *plan.MalformedPlanError
//	if errors.As(err, &mpe) {
//	    fmt.Println("bad step", mpe.Index, mpe.Rule)
//	}
//
// Execute it:
//
//	exec := plan.NewExecutor(plan.DefaultExecConfig(), plan.Deps{
//	    Confirmer:  confirmer,
//	    Runner:     runner.New("", dir, logger),
//	    Files:      fileops.New(),
//	    Classifier: safety.NewClassifier(safety.DefaultRules(), logger),
//	    Store:      plan.NewFileStore(planDir),
//	})
//	err = exec.Run(ctx, p)
//
// # Lifecycle
//
// A plan moves draft -> in_progress -> completed, or to aborted when the
// user cancels. The plan is saved after every step, so an interrupted run
// can be resumed from the first step without a terminal result.
package plan
