// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package report renders pipeline progress for the terminal. It implements
// pipeline.Observer, so the same step events drive both the human output and
// the test assertions.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dogwoodfire/MouseEye/internal/i18n"
	"github.com/dogwoodfire/MouseEye/internal/pipeline"
)

var (
	stepStyle      = lipgloss.NewStyle().Bold(true)
	siteStyle      = lipgloss.NewStyle().Faint(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	toleratedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// Reporter writes step progress to out.
type Reporter struct {
	out io.Writer
}

// New returns a Reporter writing to out.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// StepStart announces a step before it runs.
func (r *Reporter) StepStart(step pipeline.Step) {
	fmt.Fprintf(r.out, "%s %s\n",
		stepStyle.Render("▸ "+step.Name),
		siteStyle.Render("("+step.Site.String()+")"))
}

// StepDone reports how a step finished.
func (r *Reporter) StepDone(step pipeline.Step, outcome pipeline.Outcome, err error) {
	switch outcome {
	case pipeline.OutcomeOK:
		fmt.Fprintf(r.out, "%s\n", okStyle.Render("  ✓ "+step.Name))
	case pipeline.OutcomeTolerated:
		fmt.Fprintf(r.out, "%s\n", toleratedStyle.Render("  ~ "+i18n.T("report.tolerated", step.Name, err)))
	case pipeline.OutcomeFailed:
		fmt.Fprintf(r.out, "%s\n", failStyle.Render("  ✗ "+step.Name+": "+err.Error()))
	}
}

// Successf prints the end-of-pipeline success indicator.
func (r *Reporter) Successf(format string, args ...any) {
	fmt.Fprintf(r.out, "%s\n", successStyle.Render(fmt.Sprintf(format, args...)))
}

// Printf writes plain, unstyled output (status dumps, history listings).
func (r *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
