package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

const maxErrorWidth = 60

type rowState int

const (
	rowQuerying rowState = iota
	rowDone
	rowFailed
)

type progressRow struct {
	name    string
	state   rowState
	detail  string
	started time.Time
	elapsed time.Duration
}

type (
	advisorStartedMsg struct {
		advisor counciltypes.AdvisorDescriptor
		at      time.Time
	}
	advisorFinishedMsg    struct{ result counciltypes.AdvisorResult }
	rapporteurStartedMsg  struct{ at time.Time }
	rapporteurFinishedMsg struct{ result counciltypes.AdvisorResult }
	progressDoneMsg       struct{}
)

var (
	progressTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	progressNameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	progressDoneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	progressErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	progressWaitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

// progressModel is the bubbletea model of one turn's status table.
type progressModel struct {
	spinner    spinner.Model
	turn       int
	rows       []*progressRow
	index      map[string]*progressRow
	rapporteur *progressRow
	now        func() time.Time
}

func newProgressModel(turn int, now func() time.Time) progressModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)
	return progressModel{
		spinner: s,
		turn:    turn,
		index:   make(map[string]*progressRow),
		now:     now,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case advisorStartedMsg:
		row := &progressRow{name: msg.advisor.Name, started: msg.at}
		m.rows = append(m.rows, row)
		m.index[row.name] = row
		return m, nil
	case advisorFinishedMsg:
		if row, ok := m.index[msg.result.Advisor]; ok {
			finishRow(row, msg.result)
		}
		return m, nil
	case rapporteurStartedMsg:
		m.rapporteur = &progressRow{name: "Rapporteur", started: msg.at}
		return m, nil
	case rapporteurFinishedMsg:
		if m.rapporteur != nil {
			finishRow(m.rapporteur, msg.result)
		}
		return m, nil
	case progressDoneMsg:
		return m, tea.Quit
	default:
		return m, nil
	}
}

func finishRow(row *progressRow, result counciltypes.AdvisorResult) {
	row.elapsed = result.Elapsed
	if result.Failed {
		row.state = rowFailed
		row.detail = strings.ReplaceAll(result.Response, "\n", " ")
		return
	}
	row.state = rowDone
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(progressTitleStyle.Render(fmt.Sprintf("AI Council Status (turn %d)", m.turn)))
	b.WriteString("\n")

	width := len("Rapporteur")
	for _, row := range m.rows {
		if len(row.name) > width {
			width = len(row.name)
		}
	}

	for _, row := range m.rows {
		b.WriteString(m.renderRow(row, width))
	}
	if m.rapporteur != nil {
		b.WriteString(m.renderRow(m.rapporteur, width))
	}
	return b.String()
}

func (m progressModel) renderRow(row *progressRow, width int) string {
	name := progressNameStyle.Render(fmt.Sprintf("%-*s", width, row.name))

	switch row.state {
	case rowDone:
		return fmt.Sprintf("  %s  %s  %6.2fs\n", name, progressDoneStyle.Render("✅ Done"), row.elapsed.Seconds())
	case rowFailed:
		detail := ansi.Truncate(row.detail, maxErrorWidth, "…")
		return fmt.Sprintf("  %s  %s  %6.2fs\n", name, progressErrStyle.Render("❌ Error: "+detail), row.elapsed.Seconds())
	default:
		elapsed := m.now().Sub(row.started)
		return fmt.Sprintf("  %s  %s %s  %6.2fs\n", name, m.spinner.View(), progressWaitStyle.Render("Querying..."), elapsed.Seconds())
	}
}

// LiveProgress renders a live status table of the advisors of a turn with bubbletea.
// Begin starts the view, End stops it once the turn is over.
type LiveProgress struct {
	out io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewLiveProgress creates a live view writing to out.
func NewLiveProgress(out io.Writer) *LiveProgress {
	return &LiveProgress{out: out}
}

// Begin starts the status table for turn.
func (p *LiveProgress) Begin(ctx context.Context, turn int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	program := tea.NewProgram(
		newProgressModel(turn, time.Now),
		tea.WithInput(nil),
		tea.WithOutput(p.out),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			logger.Debug("Progress view stopped", "error", err)
		}
	}()

	p.program = program
	p.done = done
}

// End stops the status table and waits until its final frame is drawn.
func (p *LiveProgress) End() {
	p.mu.Lock()
	program, done := p.program, p.done
	p.program, p.done = nil, nil
	p.mu.Unlock()

	if program == nil {
		return
	}
	program.Send(progressDoneMsg{})
	<-done
	fmt.Fprintln(p.out)
}

func (p *LiveProgress) send(msg tea.Msg) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

// AdvisorStarted adds a querying row.
func (p *LiveProgress) AdvisorStarted(advisor counciltypes.AdvisorDescriptor) {
	p.send(advisorStartedMsg{advisor: advisor, at: time.Now()})
}

// AdvisorFinished marks the advisor's row done or failed.
func (p *LiveProgress) AdvisorFinished(result counciltypes.AdvisorResult) {
	p.send(advisorFinishedMsg{result: result})
}

// RapporteurStarted adds the rapporteur row.
func (p *LiveProgress) RapporteurStarted(string) {
	p.send(rapporteurStartedMsg{at: time.Now()})
}

// RapporteurFinished marks the rapporteur row.
func (p *LiveProgress) RapporteurFinished(result counciltypes.AdvisorResult) {
	p.send(rapporteurFinishedMsg{result: result})
}

// LogProgress reports turn progress as log lines, for non-interactive output.
type LogProgress struct {
	log *log.Logger
}

// NewLogProgress creates a log based progress reporter.
func NewLogProgress() *LogProgress {
	return &LogProgress{log: logger.NewStyledLogger("Council")}
}

// Begin logs the start of a turn.
func (p *LogProgress) Begin(_ context.Context, turn int) {
	p.log.Info("Dispatching to the council", "turn", turn)
}

// End is a no-op.
func (p *LogProgress) End() {}

func (p *LogProgress) AdvisorStarted(advisor counciltypes.AdvisorDescriptor) {
	p.log.Info("Querying", "advisor", advisor.Name, "model", advisor.ModelID)
}

func (p *LogProgress) AdvisorFinished(result counciltypes.AdvisorResult) {
	if result.Failed {
		p.log.Warn("Advisor failed", "advisor", result.Advisor, "elapsed", result.Elapsed.Round(time.Millisecond), "error", ansi.Truncate(result.Response, maxErrorWidth, "…"))
		return
	}
	p.log.Info("Advisor done", "advisor", result.Advisor, "elapsed", result.Elapsed.Round(time.Millisecond), "cost", fmt.Sprintf("%.6f", result.CostUSD))
}

func (p *LogProgress) RapporteurStarted(modelID string) {
	p.log.Info("Rapporteur is compiling the report", "model", modelID)
}

func (p *LogProgress) RapporteurFinished(result counciltypes.AdvisorResult) {
	if result.Failed {
		p.log.Warn("Rapporteur failed", "error", ansi.Truncate(result.Response, maxErrorWidth, "…"))
		return
	}
	p.log.Info("Rapporteur done", "elapsed", result.Elapsed.Round(time.Millisecond))
}
