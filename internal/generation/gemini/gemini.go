// Package gemini generates reports with Gemini's structured JSON output.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"rentcase/internal/domain"
	"rentcase/internal/generation"
)

// Config configures the generator.
type Config struct {
	APIKeyEnv   string
	Model       string
	Temperature float32
}

// Generator implements domain.Generator.
type Generator struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// New creates a generator bound to the report schema.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GOOGLE_GENERATIVE_AI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = ReportSchema()
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}
	return &Generator{client: client, model: model, name: "gemini:" + cfg.Model}, nil
}

func (g *Generator) Name() string { return g.name }

// Generate returns the complete report in one call.
func (g *Generator) Generate(ctx context.Context, prompt string) (*domain.Report, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailure, err)
	}
	return generation.ParseReport(responseText(resp))
}

// Stream starts a streaming generation.
func (g *Generator) Stream(ctx context.Context, prompt string) (domain.ReportStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := g.model.GenerateContentStream(ctx, genai.Text(prompt))
	return generation.NewStream(&chunks{it: it, cancel: cancel}), nil
}

// Close releases the underlying client.
func (g *Generator) Close() error { return g.client.Close() }

type chunks struct {
	it     *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
}

func (c *chunks) Next() (string, error) {
	resp, err := c.it.Next()
	if errors.Is(err, iterator.Done) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func (c *chunks) Close() error {
	c.cancel()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// ReportSchema describes domain.Report for constrained decoding.
func ReportSchema() *genai.Schema {
	str := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeString, Description: desc} }
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"diagnosis": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":    str(""),
					"summary":  str(""),
					"severity": str("Low, Medium, High or Critical"),
				},
				Required: []string{"title", "summary", "severity"},
			},
			"riskAssessment": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"legalRisk":               str(""),
					"financialRisk":           str(""),
					"score":                   {Type: genai.TypeNumber, Description: "Overall risk score (0-100)"},
					"financialImpactEstimate": str(`Estimated cost range, e.g. "$500 - $1000"`),
				},
				Required: []string{"legalRisk", "financialRisk", "score", "financialImpactEstimate"},
			},
			"decisionTree": {
				Type:        genai.TypeArray,
				Description: "List of actionable options",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":          str(""),
						"label":       str(""),
						"description": str(""),
						"recommended": {Type: genai.TypeBoolean},
						"riskLevel":   str("Low, Medium or High"),
					},
					Required: []string{"id", "label", "description", "recommended", "riskLevel"},
				},
			},
			"realityCheck": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"quote":   str("A quote from the retrieved cases showing what happens in practice"),
					"context": str("Brief context for the quote"),
				},
				Required: []string{"quote", "context"},
			},
			"preMortemChecklist": {
				Type:        genai.TypeArray,
				Description: "Questions to verify the current state before acting",
				Items:       str(""),
			},
		},
		Required: []string{"diagnosis", "riskAssessment", "decisionTree", "realityCheck", "preMortemChecklist"},
	}
}
