package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// recentFailures is how many failed files the panel lists.
const recentFailures = 3

// quitTimeout bounds how long Stop waits for the program to exit.
const quitTimeout = 2 * time.Second

// TUIRenderer draws indexing progress with bubbletea. The model reads the
// shared tracker on every frame, so progress events only need to update it.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *ProgressTracker
	model   *indexingModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.Title)
	model.styles = GetStyles(cfg.NoColor || DetectNoColor())

	return &TUIRenderer{cfg: cfg, tracker: tracker, model: model}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.done = make(chan struct{})

	go func(p *tea.Program, done chan struct{}) {
		defer close(done)
		_, _ = p.Run()
	}(r.program, r.done)
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(failureMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.SetStage(StageComplete, 0)
	r.send(completeMsg(stats))
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, done := r.program, r.done
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-done:
	case <-time.After(quitTimeout):
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

type (
	failureMsg  ErrorEvent
	completeMsg CompletionStats
	frameMsg    time.Time
)

// indexingModel is the bubbletea model of an indexing run.
type indexingModel struct {
	tracker  *ProgressTracker
	title    string
	width    int
	failures []ErrorEvent // newest last, at most recentFailures
	summary  *CompletionStats
	quitting bool

	spinner spinner.Model
	bar     progress.Model
	styles  Styles
}

func newIndexingModel(tracker *ProgressTracker, title string) *indexingModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &indexingModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar:     progress.New(progress.WithSolidFill(ColorLime), progress.WithoutPercentage()),
		styles:  DefaultStyles(),
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, nextFrame())
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case failureMsg:
		m.failures = append(m.failures, ErrorEvent(msg))
		if len(m.failures) > recentFailures {
			m.failures = m.failures[len(m.failures)-recentFailures:]
		}
	case completeMsg:
		stats := CompletionStats(msg)
		m.summary = &stats
		return m, tea.Quit
	case frameMsg:
		return m, nextFrame()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	switch {
	case m.quitting:
		return "Cancelled.\n"
	case m.summary != nil:
		return m.viewSummary()
	}

	width := m.panelWidth()
	stats := m.tracker.Stats()

	body := []string{m.viewStages(stats.Stage), m.viewProgress(stats, width)}
	if stats.CurrentFile != "" {
		body = append(body, m.styles.Dim.Render(truncateFilePath(stats.CurrentFile, width-2)))
	}
	for _, f := range m.failures {
		body = append(body, m.viewFailure(f, width-2))
	}

	heading := "SearchKit Indexer"
	if m.title != "" {
		heading += " • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(body, "\n"))

	return m.styles.Header.Render(heading) + "\n" + panel + "\n" + m.viewFooter(stats)
}

func (m *indexingModel) panelWidth() int {
	return max(m.width-4, 40)
}

var stageLabels = map[Stage]string{StageScanning: "Scan", StageIndexing: "Index", StageFlushing: "Flush"}

func (m *indexingModel) viewStages(current Stage) string {
	var parts []string
	for st := StageScanning; st < StageComplete; st++ {
		name := stageLabels[st]
		switch {
		case st < current:
			parts = append(parts, m.styles.Success.Render("● "+name))
		case st == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+name))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+name))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexingModel) viewProgress(stats ProgressStats, width int) string {
	if stats.Total == 0 {
		return m.spinner.View() + " " + stats.Stage.String() + "...\n" + m.styles.Dim.Render("Preparing...")
	}

	m.bar.Width = max(width-10, 20)
	line := m.bar.ViewAs(stats.Progress) + "  " + m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))

	detail := fmt.Sprintf("%d / %d files", stats.Current, stats.Total)
	if stats.Rate > 0 {
		detail += fmt.Sprintf("  •  %.0f files/s", stats.Rate)
	}
	if stats.ETA > 0 {
		detail += "  •  ETA " + formatDuration(stats.ETA)
	}
	return line + "\n" + m.styles.Label.Render(detail)
}

func (m *indexingModel) viewFailure(f ErrorEvent, width int) string {
	style, mark := m.styles.Error, "✗"
	if f.IsWarn {
		style, mark = m.styles.Warning, "⚠"
	}
	text := fmt.Sprintf("%s %v", mark, f.Err)
	if f.File != "" {
		text = fmt.Sprintf("%s %s: %v", mark, filepath.Base(f.File), f.Err)
	}
	if len(text) > width {
		text = text[:max(width-3, 0)] + "..."
	}
	return style.Render(text)
}

func (m *indexingModel) viewFooter(stats ProgressStats) string {
	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *indexingModel) viewSummary() string {
	s := m.summary
	rows := [][2]string{
		{"Files:", fmt.Sprintf("%d added of %d", s.Added, s.Files)},
		{"Documents:", fmt.Sprintf("%d", s.Documents)},
		{"Duration:", formatDuration(s.Duration)},
	}
	if s.Index.Backend != "" {
		rows = append(rows, [2]string{"Engine:", s.Index.Backend + ", " + s.Index.Type})
	}

	lines := []string{m.styles.Success.Render("✓ Indexing Complete"), ""}
	for _, row := range rows {
		lines = append(lines, m.styles.Label.Render(fmt.Sprintf("%-10s", row[0]))+" "+m.styles.Active.Render(row[1]))
	}
	if s.Errors > 0 || s.Warnings > 0 {
		lines = append(lines, "")
	}
	if s.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", s.Errors)))
	}
	if s.Warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", s.Warnings)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(m.panelWidth()).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration rounds to seconds and drops zero minor units.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, mins, secs := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mins)
	case mins > 0 && secs == 0:
		return fmt.Sprintf("%dm", mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// truncateFilePath shortens path to maxLen, keeping the file name and the
// end of its directory.
func truncateFilePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	dir, file := filepath.Split(path)
	if dir == "" || len(file)+4 > maxLen {
		return "..." + path[len(path)-max(maxLen-3, 0):]
	}
	keep := maxLen - len(file) - 3
	return "..." + dir[len(dir)-keep:] + file
}

var _ Renderer = (*TUIRenderer)(nil)
