// Package prompt renders retrieved cases and a user question into the
// instruction text sent to the generator.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"rentcase/internal/domain"
)

// NoContextMarker replaces the context block when retrieval found nothing.
const NoContextMarker = "NO CASE CONTEXT AVAILABLE"

// NoPrecedent is the phrase the model must use when no case applies.
const NoPrecedent = "No closely matching precedent found."

const caseSeparator = "\n---\n"

// FormatContext renders cases in rank order, numbered from 1. Missing
// consensus or quotes are shown as N/A.
func FormatContext(cases []domain.ScoredCase) string {
	if len(cases) == 0 {
		return ""
	}
	blocks := make([]string, len(cases))
	for i, c := range cases {
		m := c.Record.Metadata
		consensus := orNA(m.CommunityConsensus)
		quote, ok := m.FirstQuote()
		if !ok {
			quote = "N/A"
		}
		blocks[i] = fmt.Sprintf("\nCase #%d: %s\nTrigger: %s\nMistake: %s\nSummary: %s\nConsensus: %s\nQuote: %s\n",
			i+1, m.Title, m.Trigger, m.FatalMistake, m.Summary, consensus, quote)
	}
	return strings.Join(blocks, caseSeparator)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

var instructions = template.Must(template.New("prompt").Parse(`You are a Problem-Diagnosis-Resolution decision engine for rental housing disputes.
You help tenants and landlords reach clear, defensible decisions using prior real-world cases.

You are not a general assistant. You give no generic advice, moral opinions or speculative legal claims.

RULES
1. Ground every conclusion in the case context below.
   - When information is missing, say explicitly what cannot be concluded.
2. Prefer practical decisions over theory.
3. Be concise, structured and decisive.
4. The reader is short on time and cares about risk.
5. Never invent laws, citations or outcomes.
6. If no relevant case exists, say: "{{.NoPrecedent}}"

----------------------------
CONTEXT (Retrieved Case Data)
----------------------------
{{.Context}}

----------------------------
USER QUERY
----------------------------
"{{.Query}}"

----------------------------
TASK
----------------------------
Analyze the situation against the retrieved cases and produce a structured report:

1. DIAGNOSIS
   - Classify the core issue (for example Unauthorized Alteration, Non-Payment, Habitability Dispute).
   - Explain why the classification fits, citing precedent.

2. RISK ASSESSMENT
   - Legal exposure (low / medium / high) with justification.
   - Financial downside if mishandled, with an estimated cost range.
   - Overall risk score from 0 to 100.

3. DECISION TREE
   - Two to four concrete options, each with an id, a label, a description, a risk level and
     whether it is recommended.

4. REALITY CHECK
   - One blunt quote drawn from similar cases and the context it came from.

5. PRE-MORTEM CHECKLIST
   - Facts to verify before acting: documents, timelines, permissions, notices, condition evidence.

OUTPUT STYLE
- Short paragraphs or bullet points.
- No filler, no empathy language, no disclaimers.
- Write as an expert operator advising another operator.

If the retrieved context is weak or irrelevant, state that clearly and ask for the minimum
additional facts needed to proceed.
`))

// Build renders the full instruction text. An empty context block is replaced
// with NoContextMarker so the model knows retrieval came back empty.
func Build(contextBlock, userQuery string) string {
	if strings.TrimSpace(contextBlock) == "" {
		contextBlock = NoContextMarker
	}
	var sb strings.Builder
	data := struct{ Context, Query, NoPrecedent string }{contextBlock, userQuery, NoPrecedent}
	if err := instructions.Execute(&sb, data); err != nil {
		// the template only reads string fields
		panic(err)
	}
	return sb.String()
}
