// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/render"
	"github.com/jeranaias/agentchat/internal/session"
	"github.com/jeranaias/agentchat/internal/ui/styles"
)

// noteTTL is how long a status note stays visible.
const noteTTL = 4 * time.Second

// inputHeight is the number of text rows in the composer.
const inputHeight = 3

// ConverterFactory builds the markdown converter for a style and wrap width.
type ConverterFactory func(style string, wordWrap int) (render.Converter, error)

// Options wires the chat view to a session.
type Options struct {
	Controller *session.Controller
	Feed       *ChangeFeed
	Config     *config.Config

	// TransportLabel is shown in the header (e.g. "http 127.0.0.1:8787")
	TransportLabel string

	// NewConverter rebuilds the cache's converter on theme or width changes.
	// Nil keeps whatever converter the cache was created with.
	NewConverter ConverterFactory

	Logger *zerolog.Logger
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It renders the
// controller's transcript and forwards send, stop and clear to it; it never
// edits the transcript itself.
type Model struct {
	ctrl         *session.Controller
	feed         *ChangeFeed
	cfg          *config.Config
	label        string
	newConverter ConverterFactory
	log          zerolog.Logger

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool
	wrap   int

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap

	// Redraw throttling; pointers so copies made by Update share them
	limiter   *FrameLimiter
	optimizer *ViewportOptimizer

	// View state
	showDebug bool
	showHelp  bool
	spinning  bool
	note      string
	noteSeq   int
}

// New creates a chat model.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 8192
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = DefaultKeyMap().Newline
	ta.Focus()

	theme := styles.NewTheme(cfg.UI.Theme)
	ta.Prompt = theme.InputPrompt.Render("┃ ")

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	return Model{
		ctrl:         opts.Controller,
		feed:         opts.Feed,
		cfg:          cfg,
		label:        opts.TransportLabel,
		newConverter: opts.NewConverter,
		log:          logger.With().Str("component", "tui").Logger(),
		theme:        theme,
		input:        ta,
		spinner:      sp,
		help:         help.New(),
		keys:         DefaultKeyMap(),
		limiter:      NewFrameLimiter(cfg.UI.MaxFPS),
		optimizer:    NewViewportOptimizer(),
		showDebug:    cfg.UI.ShowDebug,
		wrap:         cfg.Render.WordWrap,
	}
}

// Init starts the cursor blink and the change feed.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.feed != nil {
		cmds = append(cmds, m.feed.Wait())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case SessionChangedMsg:
		return m.handleSessionChanged(msg)

	case FrameTickMsg:
		m.limiter.Tick(time.Time(msg))
		m.refresh()
		return m, nil

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case noteExpiredMsg:
		if msg.seq == m.noteSeq {
			m.note = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.spinning {
			return m, nil
		}
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.help.Width = msg.Width

	vpHeight := msg.Height - m.chromeHeight()
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(msg.Width - 2)

	if m.cfg.Render.WordWrap == 0 {
		wrap := bubbleWidth(msg.Width) - 4
		if wrap != m.wrap {
			m.wrap = wrap
			m.applyConverter()
		}
	}

	m.optimizer.Reset()
	m.refresh()
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.feed != nil {
			m.feed.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Stop):
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		if m.busy() {
			m.ctrl.Stop()
			m.refresh()
			return m, m.setNote("stopped; partial reply kept")
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.ctrl.ClearHistory()
		m.optimizer.Reset()
		m.refresh()
		return m, m.setNote("history cleared")

	case key.Matches(msg, m.keys.ToggleDebug):
		m.showDebug = !m.showDebug
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.ToggleTheme):
		m.setTheme(m.theme.Toggled())
		m.applyConverter()
		m.optimizer.Reset()
		m.refresh()
		return m, m.setNote(m.theme.Name() + " theme")

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	err := m.ctrl.Send(m.input.Value())
	switch {
	case err == nil:
		m.input.Reset()
		m.refresh()
		m.viewport.GotoBottom()
		return m, m.startSpinner()
	case errors.Is(err, session.ErrValidation):
		return m, nil
	case errors.Is(err, session.ErrSessionBusy):
		return m, m.setNote("a reply is still streaming; Esc stops it")
	default:
		m.log.Warn().Err(err).Msg("send rejected")
		return m, m.setNote(err.Error())
	}
}

func (m Model) handleSessionChanged(msg SessionChangedMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.feed.Wait()}
	if msg.Cleared {
		m.optimizer.Reset()
	}

	if m.busy() {
		cmds = append(cmds, m.startSpinner())
		draw, tick := m.limiter.Request(time.Now())
		if draw {
			m.refresh()
		}
		if tick != nil {
			cmds = append(cmds, tick)
		}
		return m, tea.Batch(cmds...)
	}

	// Final frames are never throttled so the finished reply shows at once.
	m.limiter.Force(time.Now())
	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.log.Warn().Err(msg.Err).Msg("config reload failed")
		return m, m.setNote("config not reloaded: " + msg.Err.Error())
	}
	next := msg.Config
	prev := m.cfg
	m.cfg = next

	if next.UI.Theme != prev.UI.Theme {
		m.setTheme(styles.NewTheme(next.UI.Theme))
	}
	if next.UI.ShowDebug != prev.UI.ShowDebug {
		m.showDebug = next.UI.ShowDebug
	}
	if next.UI.MaxFPS != prev.UI.MaxFPS {
		m.limiter = NewFrameLimiter(next.UI.MaxFPS)
	}
	if next.Render.WordWrap != 0 {
		m.wrap = next.Render.WordWrap
	} else if m.width > 0 {
		m.wrap = bubbleWidth(m.width) - 4
	}
	if cache := m.ctrl.RenderCache(); cache != nil && next.Render.CacheSize != prev.Render.CacheSize {
		cache.Resize(next.Render.CacheSize)
	}
	if next.GlamourStyle() != prev.GlamourStyle() || next.UI.Theme != prev.UI.Theme ||
		next.Render.WordWrap != prev.Render.WordWrap {
		m.applyConverter()
	}

	m.optimizer.Reset()
	m.refresh()
	m.log.Info().Str("theme", next.UI.Theme).Msg("config reloaded")
	return m, m.setNote("config reloaded")
}

// =============================================================================
// HELPERS
// =============================================================================

func (m Model) busy() bool {
	return m.ctrl.Status().Busy()
}

func (m *Model) startSpinner() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *Model) setNote(note string) tea.Cmd {
	m.noteSeq++
	m.note = note
	seq := m.noteSeq
	return tea.Tick(noteTTL, func(time.Time) tea.Msg { return noteExpiredMsg{seq: seq} })
}

func (m *Model) setTheme(theme *styles.Theme) {
	theme.SetSize(m.width, m.height)
	m.theme = theme
	m.input.Prompt = theme.InputPrompt.Render("┃ ")
	m.spinner.Style = theme.Spinner
}

// glamourStyle resolves the configured style against the live theme.
func (m *Model) glamourStyle() string {
	if s := m.cfg.Render.Style; s != "" && s != "auto" {
		return s
	}
	return m.theme.Name()
}

// applyConverter swaps the cache's converter, which also drops every cached
// rendering made with the old one.
func (m *Model) applyConverter() {
	cache := m.ctrl.RenderCache()
	if cache == nil || m.newConverter == nil {
		return
	}
	conv, err := m.newConverter(m.glamourStyle(), m.wrap)
	if err != nil {
		m.log.Warn().Err(err).Msg("markdown renderer unavailable, showing plain text")
		conv = render.Plain
	}
	cache.SetConverter(conv)
}

// refresh re-renders the transcript into the viewport, following the tail
// when the view was already at the bottom.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	content := m.renderTranscript()
	if !m.optimizer.ShouldUpdate(content) {
		return
	}
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(content)
	if follow {
		m.viewport.GotoBottom()
	}
}

// chromeHeight is the space taken by everything but the transcript.
func (m Model) chromeHeight() int {
	const header, status, border = 1, 1, 1
	return header + status + border + inputHeight
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Theme returns the active theme.
func (m Model) Theme() *styles.Theme { return m.theme }

// ShowDebug reports whether message JSON is shown.
func (m Model) ShowDebug() bool { return m.showDebug }

// Note returns the status note, if any.
func (m Model) Note() string { return m.note }

// InputValue returns the composer text.
func (m Model) InputValue() string { return m.input.Value() }
