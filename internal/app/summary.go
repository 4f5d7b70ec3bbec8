package app

import (
	"fmt"
	"strings"
	"time"

	"relayctl/internal/color"
	"relayctl/internal/orchestrator"

	"github.com/charmbracelet/lipgloss"
)

// Summary renders report for the terminal.
func Summary(report *orchestrator.RunReport) string {
	var lines []string

	title := fmt.Sprintf("Run %d", report.Generation)
	if report.Failed() {
		title += " " + color.ErrorStyle.Render(fmt.Sprintf("failed (%s)", report.FailureKind()))
	} else {
		title += " " + color.SuccessStyle.Render("ok")
	}
	lines = append(lines, color.TitleStyle.Render(title), "")

	if report.Mode != "" {
		lines = append(lines, color.Row("Tunnel", string(report.Mode)))
	}
	if report.Hostname != "" {
		lines = append(lines, color.Row("Hostname", report.Hostname))
	}
	running := "none"
	if len(report.Running) > 0 {
		names := make([]string, 0, len(report.Running))
		for _, name := range report.Running {
			if pid := report.PIDs[name]; pid > 0 {
				name = fmt.Sprintf("%s (pid %d)", name, pid)
			}
			names = append(names, name)
		}
		running = strings.Join(names, ", ")
	}
	lines = append(lines, color.Row("Running", running))
	if !report.FinishedAt.IsZero() {
		lines = append(lines, color.Row("Took", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()))
	}

	lines = append(lines, "")
	for _, step := range report.Steps {
		lines = append(lines, stepLine(step))
	}

	if uris := report.Links.URIs(); len(uris) > 0 {
		lines = append(lines, "", color.TitleStyle.Render("Links"))
		for _, uri := range uris {
			lines = append(lines, color.MutedStyle.Render(uri))
		}
	}

	return color.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func stepLine(step orchestrator.StepResult) string {
	state, detail := color.StateOK, ""
	switch {
	case step.Err != nil:
		state, detail = color.StateFailed, step.Err.Error()
	case step.Skipped != "":
		state, detail = color.StateSkipped, step.Skipped
	}

	line := color.StateIcon(state) + " " + color.StateStyle(state).Render(string(step.Step))
	if detail != "" {
		line += " " + color.MutedStyle.Render(detail)
	}
	return line
}
