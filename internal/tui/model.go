// Package tui is the interactive release view: one row per workspace
// package in publish order, with key bindings that dispatch session
// commands. Publish outcomes arrive asynchronously as session events.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/leapstack-labs/easyrelease/internal/session"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ReloadFunc re-reads the workspace and applies it to the session.
type ReloadFunc func(ctx context.Context) error

// eventMsg carries one session event.
type eventMsg struct{ event session.Event }

// bumpFinishedMsg reports a bump started from the view.
type bumpFinishedMsg struct {
	name string
	err  error
}

// WorkspaceErrorMsg reports that the workspace could not be re-read.
type WorkspaceErrorMsg struct{ Err error }

// Option customizes a Model.
type Option func(*Model)

// WithReload sets the function run after a successful bump so the view
// shows the new versions.
func WithReload(fn ReloadFunc) Option {
	return func(m *Model) {
		m.reload = fn
	}
}

// WithStrategy sets the strategy of the bump key. Defaults to minor.
func WithStrategy(s bump.Strategy) Option {
	return func(m *Model) {
		if s != "" {
			m.strategy = s
		}
	}
}

// Model is the bubbletea model of a release session.
type Model struct {
	ctx      context.Context
	session  *session.Session
	reload   ReloadFunc
	strategy bump.Strategy

	keys  keyMap
	help  help.Model
	title cases.Caser

	rows     []session.Status
	cursor   int
	notice   string
	isError  bool
	bumping  string
	width    int
	quitting bool
}

// New creates the view of s. ctx governs publish processes and bumps
// started from the view.
func New(ctx context.Context, s *session.Session, opts ...Option) *Model {
	m := &Model{
		ctx:      ctx,
		session:  s,
		strategy: bump.StrategyMinor,
		keys:     defaultKeys(),
		help:     help.New(),
		title:    cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.refresh()
	return m
}

// Init starts listening for session events.
func (m *Model) Init() tea.Cmd {
	return waitForEvent(m.session.Events())
}

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

// Update handles key presses and session events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.handleEvent(msg.event)
		return m, waitForEvent(m.session.Events())

	case bumpFinishedMsg:
		m.bumping = ""
		if msg.err != nil {
			m.setError(fmt.Errorf("bump %s: %w", msg.name, msg.err))
		}
		m.refresh()
		return m, nil

	case WorkspaceErrorMsg:
		m.setError(msg.Err)
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Ignore):
		if st, ok := m.selected(); ok {
			m.dispatch(session.Ignore{ID: st.ID})
		}
	case key.Matches(msg, m.keys.Release):
		if st, ok := m.selected(); ok {
			m.dispatch(session.Release{ID: st.ID})
		}
	case key.Matches(msg, m.keys.Bump):
		return m, m.startBump(m.strategy)
	case key.Matches(msg, m.keys.Patch):
		return m, m.startBump(bump.StrategyPatch)
	case key.Matches(msg, m.keys.DryRun):
		m.dispatch(session.SetDryRun{Value: !m.session.Options().DryRun})
	case key.Matches(msg, m.keys.AllowDirty):
		m.dispatch(session.SetAllowDirty{Value: !m.session.Options().AllowDirty})
	}
	return m, nil
}

// startBump runs a bump off the update loop. Only one bump runs at a time.
func (m *Model) startBump(strategy bump.Strategy) tea.Cmd {
	st, ok := m.selected()
	if !ok || m.bumping != "" {
		return nil
	}
	m.bumping = st.Name
	m.setNotice(fmt.Sprintf("bumping %s (%s)...", st.Name, strategy))

	ctx, s, reload := m.ctx, m.session, m.reload
	return func() tea.Msg {
		err := s.Dispatch(ctx, session.Bump{ID: st.ID, Strategy: strategy})
		if err == nil && reload != nil {
			err = reload(ctx)
		}
		return bumpFinishedMsg{name: st.Name, err: err}
	}
}

func (m *Model) dispatch(cmd session.Command) {
	if err := m.session.Dispatch(m.ctx, cmd); err != nil {
		m.setError(err)
	}
	m.refresh()
}

func (m *Model) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventIgnored:
		m.setNotice(ev.Name + " ignored")
	case session.EventReleaseStarted:
		m.setNotice("publishing " + ev.Name + "...")
	case session.EventReleased:
		m.setNotice(ev.Name + " released")
	case session.EventDryRunPassed:
		m.setNotice(ev.Name + " dry run passed")
	case session.EventBumped:
		m.setNotice(fmt.Sprintf("%s bumped %s -> %s", ev.Name, ev.Plan.OldVersion, ev.Plan.NewVersion))
	case session.EventOptionsChanged:
		m.setNotice(fmt.Sprintf("dry-run %s, allow-dirty %s", onOff(ev.Options.DryRun), onOff(ev.Options.AllowDirty)))
	case session.EventReloaded:
		m.setNotice("workspace reloaded")
	case session.EventReleaseFailed, session.EventBumpFailed, session.EventWorkspaceBroken:
		m.setError(ev.Err)
	}
	m.refresh()
}

// refresh re-reads the rows and keeps the cursor on the same package name.
func (m *Model) refresh() {
	var current string
	if st, ok := m.selected(); ok {
		current = st.Name
	}
	m.rows = m.session.Statuses()
	m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
	for i, st := range m.rows {
		if st.Name == current {
			m.cursor = i
			break
		}
	}
}

func (m *Model) selected() (session.Status, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return session.Status{}, false
	}
	return m.rows[m.cursor], true
}

func (m *Model) setNotice(s string) {
	m.notice, m.isError = s, false
}

func (m *Model) setError(err error) {
	if err == nil {
		return
	}
	m.notice, m.isError = err.Error(), true
}

// View renders the package list.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	opts := m.session.Options()
	b.WriteString(titleStyle.Render("easyrelease"))
	b.WriteString("  " + toggle("dry-run", opts.DryRun))
	b.WriteString("  " + toggle("allow-dirty", opts.AllowDirty))
	b.WriteString("\n\n")

	nameWidth, versionWidth := 0, 0
	for _, st := range m.rows {
		nameWidth = max(nameWidth, lipgloss.Width(st.Name))
		versionWidth = max(versionWidth, lipgloss.Width(st.Version))
	}

	for i, st := range m.rows {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		line := marker +
			nameStyle.Width(nameWidth+2).Render(st.Name) +
			versionStyle.Width(versionWidth+2).Render(st.Version) +
			stateStyle(st.State).Width(12).Render(m.title.String(string(st.State)))
		switch {
		case st.Publishing:
			line += busyStyle.Render("publishing...")
		case st.Name == m.bumping:
			line += busyStyle.Render("bumping...")
		case st.LastError != nil:
			line += errorStyle.Render(firstLine(st.LastError.Error()))
		case st.LastResult != nil && st.LastResult.OK() && st.LastResult.Options.DryRun:
			line += mutedStyle.Render("dry run passed")
		}
		b.WriteString(m.truncate(line) + "\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		style := noticeStyle
		if m.isError {
			style = errorStyle
		}
		b.WriteString(m.truncate(style.Render(firstLine(m.notice))) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}

func (m *Model) truncate(s string) string {
	if m.width <= 0 {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(s)
}

func toggle(name string, on bool) string {
	if on {
		return toggleOnStyle.Render(name + ": on")
	}
	return mutedStyle.Render(name + ": off")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	return s
}
