// Package tui is the interactive terminal front end for a session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/genai-analyzer/demo/internal/export"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/particles"
	"github.com/genai-analyzer/demo/internal/session"
	"github.com/labstack/gommon/log"
)

const (
	frameInterval = 33 * time.Millisecond
	headerRows    = 6
	// Field units per terminal cell, so the particle density matches a
	// pixel canvas of the same size.
	cellWidth  = 8.0
	cellHeight = 16.0
)

// Options configures the UI.
type Options struct {
	// Context is passed to session.Start.
	Context context.Context
	// Subtitle is shown under the title, e.g. the backend URL in live mode.
	Subtitle string
	// Rand seeds the particle field; nil picks a random seed.
	Rand *rand.Rand
	// Now is the clock used for the elapsed metric.
	Now func() time.Time
}

type stateMsg models.RunState

type frameMsg time.Time

type exportedMsg struct {
	format export.Format
	path   string
	err    error
}

// Model is the bubbletea model for one session.
type Model struct {
	sess *session.Session
	opts Options

	field    *particles.Field
	spinner  spinner.Model
	progress progress.Model

	states      <-chan models.RunState
	unsubscribe func()

	state    models.RunState
	cursor   int // selected row of the files panel
	tab      resultsTab
	notice   string
	width    int
	height   int
	quitting bool

	log *log.Logger
}

// New creates the UI model and subscribes it to the session.
func New(sess *session.Session, opts Options) *Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = stepActiveStyle

	states, unsubscribe := sess.Subscribe()
	m := &Model{
		sess:        sess,
		opts:        opts,
		field:       particles.New(opts.Rand),
		spinner:     sp,
		progress:    progress.New(progress.WithGradient(string(accent), string(accentAlt)), progress.WithoutPercentage()),
		states:      states,
		unsubscribe: unsubscribe,
		state:       sess.State(),
		width:       80,
		height:      24,
		log:         logging.New("TUI"),
	}
	m.resize(m.width, m.height)
	return m
}

// Run shows the UI until the user quits or ctx is canceled.
func Run(ctx context.Context, sess *session.Session, opts Options) error {
	if opts.Context == nil {
		opts.Context = ctx
	}
	m := New(sess, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close stops following the session and releases the particle field.
func (m *Model) Close() {
	m.unsubscribe()
	m.field.Teardown()
}

// Init starts the state subscription and the animation loops.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.states), frame(), m.spinner.Tick)
}

func waitForState(ch <-chan models.RunState) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Y < headerRows {
			m.field.SetPointer((float64(msg.X)+0.5)*cellWidth, (float64(msg.Y)+0.5)*cellHeight)
		} else {
			m.field.ClearPointer()
		}
		return m, nil

	case stateMsg:
		prev := m.state
		m.state = models.RunState(msg)
		if m.state.Done && !prev.Done {
			m.tab = tabSummary
		}
		return m, waitForState(m.states)

	case frameMsg:
		if m.quitting {
			return m, nil
		}
		m.field.Step()
		return m, frame()

	case exportedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("Export %s failed: %v", msg.format, msg.err)
			m.log.Errorf("export %s: %v", msg.format, msg.err)
		} else {
			m.notice = "Saved " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "a":
		m.notice = ""
		if err := m.sess.Start(m.opts.Context); err != nil {
			m.notice = startErrorText(err)
		}

	case "c":
		if m.state.Running {
			m.sess.Cancel()
			m.notice = "Canceling after the current stage..."
		}

	case "r":
		if !m.state.Running {
			m.sess.Reset()
			m.tab = tabSummary
			m.notice = ""
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.sess.Items())-1 {
			m.cursor++
		}

	case "d", "delete":
		m.removeSelected()

	case "t", "x", "z":
		if !m.resultsVisible() {
			m.notice = "Exports are available after a completed run"
			return m, nil
		}
		return m, m.export(keyFormats[msg.String()])

	case "tab":
		if m.resultsVisible() {
			m.tab = m.tab.next()
		}
	}
	return m, nil
}

// removeSelected drops the file under the cursor. The batch is frozen while
// a run is in flight.
func (m *Model) removeSelected() {
	if m.state.Running {
		m.notice = "Files cannot be removed while a run is in progress"
		return
	}
	items := m.sess.Items()
	if len(items) == 0 {
		return
	}
	m.cursor = min(m.cursor, len(items)-1)
	item := items[m.cursor]
	if m.sess.Remove(item.ID) {
		m.notice = "Removed " + item.Name
	}
	m.cursor = max(0, min(m.cursor, len(items)-2))
}

var keyFormats = map[string]export.Format{
	"t": export.FormatText,
	"x": export.FormatJSON,
	"z": export.FormatZip,
}

func (m *Model) export(format export.Format) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		path, err := sess.SaveExport(format)
		return exportedMsg{format: format, path: path, err: err}
	}
}

func startErrorText(err error) string {
	switch {
	case errors.Is(err, session.ErrNothingToAnalyze):
		return "Add a supported file to analyze"
	case errors.Is(err, session.ErrRunActive):
		return "A run is already in progress"
	default:
		return err.Error()
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.field.Init(float64(width)*cellWidth, float64(headerRows)*cellHeight)
	m.progress.Width = max(10, width-4)
}

// resultsVisible mirrors the page: results show after a clean completion.
func (m *Model) resultsVisible() bool {
	return m.state.Done && m.state.Error == ""
}
