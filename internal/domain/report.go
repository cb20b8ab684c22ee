package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Report is the structured answer produced by the generator.
type Report struct {
	Diagnosis          Diagnosis        `json:"diagnosis"`
	RiskAssessment     RiskAssessment   `json:"riskAssessment"`
	DecisionTree       []DecisionOption `json:"decisionTree"`
	RealityCheck       RealityCheck     `json:"realityCheck"`
	PreMortemChecklist []string         `json:"preMortemChecklist"`
}

// Diagnosis classifies the core issue. Severity is Low, Medium, High or Critical.
type Diagnosis struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Severity string `json:"severity"`
}

// RiskAssessment holds the legal and financial exposure. Score is 0-100.
type RiskAssessment struct {
	LegalRisk               string  `json:"legalRisk"`
	FinancialRisk           string  `json:"financialRisk"`
	Score                   float64 `json:"score"`
	FinancialImpactEstimate string  `json:"financialImpactEstimate"`
}

// DecisionOption is one actionable branch of the decision tree.
type DecisionOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Recommended bool   `json:"recommended"`
	RiskLevel   string `json:"riskLevel"`
}

// RealityCheck is a blunt quote drawn from similar cases.
type RealityCheck struct {
	Quote   string `json:"quote"`
	Context string `json:"context"`
}

// Validate reports whether r is a complete report. Partial stream snapshots
// are expected to fail this check until the final one.
func (r *Report) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	var missing []string
	if strings.TrimSpace(r.Diagnosis.Title) == "" {
		missing = append(missing, "diagnosis.title")
	}
	if strings.TrimSpace(r.Diagnosis.Summary) == "" {
		missing = append(missing, "diagnosis.summary")
	}
	if strings.TrimSpace(r.Diagnosis.Severity) == "" {
		missing = append(missing, "diagnosis.severity")
	}
	if strings.TrimSpace(r.RiskAssessment.LegalRisk) == "" {
		missing = append(missing, "riskAssessment.legalRisk")
	}
	if strings.TrimSpace(r.RiskAssessment.FinancialRisk) == "" {
		missing = append(missing, "riskAssessment.financialRisk")
	}
	if r.DecisionTree == nil {
		missing = append(missing, "decisionTree")
	}
	if r.PreMortemChecklist == nil {
		missing = append(missing, "preMortemChecklist")
	}
	if len(missing) > 0 {
		return fmt.Errorf("report missing %s", strings.Join(missing, ", "))
	}
	if r.RiskAssessment.Score < 0 || r.RiskAssessment.Score > 100 {
		return fmt.Errorf("risk score %.1f outside 0-100", r.RiskAssessment.Score)
	}
	for i, opt := range r.DecisionTree {
		if opt.ID == "" || opt.Label == "" {
			return fmt.Errorf("decision option %d missing id or label", i)
		}
	}
	return nil
}
