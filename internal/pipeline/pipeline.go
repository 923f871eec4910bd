// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package pipeline executes an ordered sequence of named steps, stopping at
// the first step whose failure is not tolerated. Steps run strictly
// sequentially; later steps depend on the side effects of earlier ones.
package pipeline

import (
	"context"
	"fmt"
)

// Site says where a step's command runs.
type Site int

const (
	SiteLocal Site = iota
	SiteRemote
)

// String returns the site name used in logs and reports.
func (s Site) String() string {
	if s == SiteRemote {
		return "remote"
	}
	return "local"
}

// Step is a named unit of work. If Tolerate is non-nil and returns true for
// the error a run produced, the pipeline swallows the failure and continues.
type Step struct {
	Name     string
	Site     Site
	Run      func(ctx context.Context) error
	Tolerate func(err error) bool
}

// Outcome describes how a single step finished.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTolerated
	OutcomeFailed
)

// Observer receives step lifecycle events. It is how the CLI renders
// progress and how tests assert on execution order.
type Observer interface {
	StepStart(step Step)
	StepDone(step Step, outcome Outcome, err error)
}

// nopObserver is used when the caller does not care about step events.
type nopObserver struct{}

func (nopObserver) StepStart(Step) {}
func (nopObserver) StepDone(Step, Outcome, error) {}

// Pipeline is an ordered sequence of steps. Steps execute in declared order;
// later steps never run if an earlier step aborts.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Run executes the pipeline steps in order. It returns the first aborting
// error, wrapped with the failing step's name, or nil when every step either
// succeeded or failed tolerably. A cancelled context aborts before the next
// step starts.
func (p Pipeline) Run(ctx context.Context, obs Observer) error {
	if obs == nil {
		obs = nopObserver{}
	}
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline %s interrupted: %w", p.Name, err)
		}
		obs.StepStart(step)
		err := step.Run(ctx)
		if err == nil {
			obs.StepDone(step, OutcomeOK, nil)
			continue
		}
		if step.Tolerate != nil && step.Tolerate(err) {
			obs.StepDone(step, OutcomeTolerated, err)
			continue
		}
		obs.StepDone(step, OutcomeFailed, err)
		return fmt.Errorf("step %s: %w", step.Name, err)
	}
	return nil
}
