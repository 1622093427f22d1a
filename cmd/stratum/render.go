package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/stratum/internal/model"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	appliedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dryRunStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	driftedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func statusLabel(status string, plain bool) string {
	if plain {
		return status
	}
	switch status {
	case model.StatusApplied:
		return appliedStyle.Render("✔ " + status)
	case model.StatusSkipped:
		return skippedStyle.Render("- " + status)
	case model.StatusWouldApply:
		return dryRunStyle.Render("~ " + status)
	case model.StatusFailed:
		return failedStyle.Render("✖ " + status)
	default:
		return status
	}
}

func renderResults(w io.Writer, results []model.StepResult, plain bool) {
	if len(results) == 0 {
		return
	}

	header := fmt.Sprintf("%-30s %-14s %-9s %s", "Step", "Status", "Attempts", "Message")
	if !plain {
		header = headerStyle.Render(header)
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, res := range results {
		attempts := "-"
		if res.Attempts > 0 {
			attempts = fmt.Sprintf("%d", res.Attempts)
		}
		fmt.Fprintf(w, "%-30s %-14s %-9s %s\n",
			truncate(res.StepID, 30),
			statusLabel(res.Status, plain),
			attempts,
			truncate(res.Message, 40),
		)
	}
}

func renderProvisionSummary(results []model.StepResult, revision uint64, dryRun bool, plain bool) string {
	var applied, skipped, wouldApply int
	for _, res := range results {
		switch res.Status {
		case model.StatusApplied:
			applied++
		case model.StatusSkipped:
			skipped++
		case model.StatusWouldApply:
			wouldApply++
		}
	}

	if dryRun {
		line := fmt.Sprintf("\nDry run: %d step(s) would apply, %d already satisfied", wouldApply, skipped)
		if plain {
			return line
		}
		return dryRunStyle.Render(line)
	}

	line := fmt.Sprintf("\nProvisioning complete: %d applied, %d skipped (snapshot revision %d)", applied, skipped, revision)
	if plain {
		return line
	}
	return appliedStyle.Render(line)
}

func renderReport(w io.Writer, report *model.VerificationReport, plain bool) {
	header := fmt.Sprintf("%-30s %-14s %s", "Step", "Status", "Detail")
	if !plain {
		header = headerStyle.Render(header)
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, res := range report.Results {
		label := string(res.Status)
		if !plain {
			switch res.Status {
			case model.StatusSatisfied:
				label = appliedStyle.Render("✔ " + label)
			case model.StatusDrifted:
				label = driftedStyle.Render("⚠ " + label)
			case model.StatusMissing:
				label = failedStyle.Render("✖ " + label)
			default:
				label = skippedStyle.Render("? " + label)
			}
		}
		fmt.Fprintf(w, "%-30s %-14s %s\n", truncate(res.StepID, 30), label, truncate(res.Detail, 50))
	}

	fmt.Fprintf(w, "\nSatisfied: %d  Missing: %d  Drifted: %d  Unknown: %d  (%.2fs)\n",
		report.Satisfied, report.Missing, report.Drifted, report.Unknown, report.Duration.Seconds())

	if report.Ok() {
		msg := "All postconditions hold."
		if !plain {
			msg = appliedStyle.Render(msg)
		}
		fmt.Fprintln(w, msg)
	} else {
		msg := "Postconditions unsatisfied; run 'stratum provision' to reconcile."
		if !plain {
			msg = failedStyle.Render(msg)
		}
		fmt.Fprintln(w, msg)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
