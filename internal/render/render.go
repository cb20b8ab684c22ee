// Package render formats reports for terminals.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"rentcase/internal/domain"
)

var severityColors = map[string]lipgloss.Color{
	"low":      lipgloss.Color("42"),
	"medium":   lipgloss.Color("220"),
	"high":     lipgloss.Color("208"),
	"critical": lipgloss.Color("196"),
}

// SeverityStyle returns the badge style for a severity or risk level.
// Unknown levels render grey.
func SeverityStyle(level string) lipgloss.Style {
	c, ok := severityColors[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		c = lipgloss.Color("245")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(c).Padding(0, 1)
}

// Badge renders level as a coloured badge.
func Badge(level string) string {
	if level == "" {
		level = "unknown"
	}
	return SeverityStyle(level).Render(strings.ToUpper(level))
}

// Markdown renders a report, and the cases it was grounded on, as Markdown.
// Partial reports render whatever fields are present.
func Markdown(r *domain.Report, cases []domain.ScoredCase) string {
	var b strings.Builder
	if r.Diagnosis.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", r.Diagnosis.Title)
	}
	if r.Diagnosis.Severity != "" {
		fmt.Fprintf(&b, "**Severity:** %s\n\n", r.Diagnosis.Severity)
	}
	if r.Diagnosis.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Diagnosis.Summary)
	}

	ra := r.RiskAssessment
	if ra.LegalRisk != "" || ra.FinancialRisk != "" {
		b.WriteString("## Risk assessment\n\n")
		fmt.Fprintf(&b, "- **Score:** %.0f/100\n", ra.Score)
		if ra.LegalRisk != "" {
			fmt.Fprintf(&b, "- **Legal:** %s\n", ra.LegalRisk)
		}
		if ra.FinancialRisk != "" {
			fmt.Fprintf(&b, "- **Financial:** %s\n", ra.FinancialRisk)
		}
		if ra.FinancialImpactEstimate != "" {
			fmt.Fprintf(&b, "- **Estimated impact:** %s\n", ra.FinancialImpactEstimate)
		}
		b.WriteString("\n")
	}

	if len(r.DecisionTree) > 0 {
		b.WriteString("## Options\n\n")
		for i, o := range r.DecisionTree {
			label := o.Label
			if o.Recommended {
				label += " (recommended)"
			}
			fmt.Fprintf(&b, "%d. **%s**", i+1, label)
			if o.RiskLevel != "" {
				fmt.Fprintf(&b, " · risk %s", o.RiskLevel)
			}
			b.WriteString("\n")
			if o.Description != "" {
				fmt.Fprintf(&b, "   %s\n", o.Description)
			}
		}
		b.WriteString("\n")
	}

	if r.RealityCheck.Quote != "" {
		b.WriteString("## Reality check\n\n")
		fmt.Fprintf(&b, "> %s\n", r.RealityCheck.Quote)
		if r.RealityCheck.Context != "" {
			fmt.Fprintf(&b, ">\n> %s\n", r.RealityCheck.Context)
		}
		b.WriteString("\n")
	}

	if len(r.PreMortemChecklist) > 0 {
		b.WriteString("## Pre-mortem checklist\n\n")
		for _, item := range r.PreMortemChecklist {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
		b.WriteString("\n")
	}

	if len(cases) > 0 {
		b.WriteString("## Precedents\n\n")
		for _, c := range cases {
			fmt.Fprintf(&b, "- %s (similarity %.2f)\n", c.Record.Metadata.Title, c.Score)
		}
	}
	return b.String()
}

// Terminal renders the report for a terminal of the given width, with a
// coloured severity badge above the Markdown body.
func Terminal(r *domain.Report, cases []domain.ScoredCase, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	body, err := tr.Render(Markdown(r, cases))
	if err != nil {
		return "", err
	}
	header := Badge(r.Diagnosis.Severity)
	if r.RiskAssessment.Score > 0 {
		header += " " + SeverityStyle(scoreLevel(r.RiskAssessment.Score)).Render(fmt.Sprintf("RISK %.0f", r.RiskAssessment.Score))
	}
	return header + "\n" + body, nil
}

func scoreLevel(score float64) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 30:
		return "medium"
	default:
		return "low"
	}
}
