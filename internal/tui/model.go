package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rentcase/internal/domain"
	"rentcase/internal/render"
	"rentcase/internal/service"
)

// Stream is a source of report snapshots ending in io.EOF.
type Stream interface {
	Next() (*domain.Report, error)
	Close() error
}

// Asker starts a streamed answer and returns the precedents it used.
type Asker interface {
	Ask(ctx context.Context, query string) (Stream, []domain.ScoredCase, error)
}

type serviceAsker struct{ svc *service.QueryService }

func (a serviceAsker) Ask(ctx context.Context, query string) (Stream, []domain.ScoredCase, error) {
	s, err := a.svc.AnswerStream(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Cases, nil
}

// FromService adapts a QueryService to Asker.
func FromService(svc *service.QueryService) Asker { return serviceAsker{svc: svc} }

type pane int

const (
	reportPane pane = iota
	casesPane
)

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	asker    Asker
	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int

	seq       int
	stream    Stream
	report    *domain.Report
	cases     []domain.ScoredCase
	cursor    int
	pane      pane
	status    string
	lastQuery string
	storeInfo string
}

// New creates a new TUI model instance. Queries run under ctx, so cancelling
// it stops in-flight retrieval and generation. storeInfo is shown under the
// header.
func New(ctx context.Context, asker Asker, storeInfo string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe your rental dispute and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, asker: asker, input: ti, viewport: vp, storeInfo: storeInfo, status: "Ready. Tab switches between report and precedents."}
}

type streamStartedMsg struct {
	seq    int
	stream Stream
	cases  []domain.ScoredCase
}

type reportMsg struct {
	seq    int
	report *domain.Report
}

type streamDoneMsg struct{ seq int }

type errMsg struct {
	seq int
	err error
}

func (m Model) ask(seq int, q string) tea.Cmd {
	return func() tea.Msg {
		s, cases, err := m.asker.Ask(m.ctx, q)
		if err != nil {
			return errMsg{seq: seq, err: err}
		}
		return streamStartedMsg{seq: seq, stream: s, cases: cases}
	}
}

func next(seq int, s Stream) tea.Cmd {
	return func() tea.Msg {
		r, err := s.Next()
		if errors.Is(err, io.EOF) {
			return streamDoneMsg{seq: seq}
		}
		if err != nil {
			return errMsg{seq: seq, err: err}
		}
		return reportMsg{seq: seq, report: r}
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header lines, status, input box, spacer
		vh := max(3, msg.Height-reserved)
		m.width = max(20, msg.Width)
		m.viewport.Width = m.width
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil

	case streamStartedMsg:
		if msg.seq != m.seq {
			_ = msg.stream.Close()
			return m, nil
		}
		m.stream = msg.stream
		m.cases = msg.cases
		m.cursor = 0
		m.status = fmt.Sprintf("Generating report from %d precedent(s)...", len(msg.cases))
		m.refresh()
		return m, next(msg.seq, msg.stream)

	case reportMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.report = msg.report
		m.refresh()
		return m, next(msg.seq, m.stream)

	case streamDoneMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.stream = nil
		m.status = fmt.Sprintf("Report for %q", m.lastQuery)
		return m, nil

	case errMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.stream = nil
		m.status = "Error: " + msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.closeStream()
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.closeStream()
			m.seq++
			m.lastQuery = q
			m.report = nil
			m.cases = nil
			m.pane = reportPane
			m.status = "Retrieving precedents..."
			m.refresh()
			return m, m.ask(m.seq, q)
		case "tab":
			if m.pane == reportPane {
				m.pane = casesPane
			} else {
				m.pane = reportPane
			}
			m.refresh()
			return m, nil
		case "down":
			if m.pane == casesPane && len(m.cases) > 0 {
				m.cursor = (m.cursor + 1) % len(m.cases)
				m.refresh()
				return m, nil
			}
		case "up":
			if m.pane == casesPane && len(m.cases) > 0 {
				m.cursor = (m.cursor - 1 + len(m.cases)) % len(m.cases)
				m.refresh()
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeStream() {
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
}

func (m *Model) refresh() {
	if m.pane == casesPane {
		m.viewport.SetContent(m.renderCurrentCase())
		return
	}
	m.viewport.SetContent(m.renderReport())
}

// View renders the TUI layout and current pane.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Rental Dispute Decision Engine")
	info := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.storeInfo)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + info + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderReport() string {
	if m.report == nil {
		return "No report yet."
	}
	out, err := render.Terminal(m.report, m.cases, m.width-4)
	if err != nil {
		return render.Markdown(m.report, m.cases)
	}
	return out
}

func (m Model) renderCurrentCase() string {
	if len(m.cases) == 0 {
		return "No precedents for this query."
	}
	c := m.cases[m.cursor]
	md := c.Record.Metadata
	title := fmt.Sprintf("Precedent %d/%d  score=%.3f", m.cursor+1, len(m.cases), c.Score)
	var b strings.Builder
	b.WriteString(title + "\n\n")
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(md.Title) + "\n\n")
	b.WriteString(highlightBestSentence(md.Summary, m.lastQuery) + "\n\n")
	fmt.Fprintf(&b, "Trigger: %s\nMistake: %s\n", md.Trigger, md.FatalMistake)
	if md.CommunityConsensus != "" {
		fmt.Fprintf(&b, "Consensus: %s\n", md.CommunityConsensus)
	}
	if q, ok := md.FirstQuote(); ok {
		fmt.Fprintf(&b, "\n%q\n", q)
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
