package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/threadline/internal/config"
	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/logging"
	"github.com/abelbrown/threadline/internal/notice"
	"github.com/abelbrown/threadline/internal/optimistic"
	"github.com/abelbrown/threadline/internal/pagination"
	"github.com/abelbrown/threadline/internal/scroll"
	"github.com/abelbrown/threadline/internal/store"
)

// chromeRows is the header, notice line and status bar.
const chromeRows = 3

// Tab is one configured feed.
type Tab struct {
	Name string

	// FeedID stays fixed for the tab; a sort change replaces its contents.
	FeedID string
	Sorts  []string

	// Source returns the page loader for a sort.
	Source func(sort string) pagination.Fetcher

	// ReadOnly tabs never send mutations.
	ReadOnly bool
}

func (t Tab) sort(cycle int) string {
	if len(t.Sorts) == 0 {
		return ""
	}
	return t.Sorts[cycle%len(t.Sorts)]
}

// PositionStore persists scroll anchors between sessions.
type PositionStore interface {
	LoadPosition(feedID string) (store.Position, bool, error)
	SavePosition(feedID string, p store.Position) error
}

// Deps are the engine pieces the client drives.
type Deps struct {
	Controller *pagination.Controller
	Bridge     *optimistic.Bridge

	// Server handles mutations. Nil disables vote, hide and delete.
	Server optimistic.Server

	// Positions is optional.
	Positions PositionStore

	Settings       config.Settings
	PrefetchMargin int
}

// App is the main application model.
type App struct {
	ctx     context.Context
	deps    Deps
	tabs    []Tab
	sorts   []int
	active  int
	view    *FeedView
	notices *notice.Ring
	spinner spinner.Model
	now     func() time.Time

	width  int
	height int
}

// NewApp creates the client. Saved positions are seeded into the feed
// store before anything is fetched.
func NewApp(ctx context.Context, tabs []Tab, deps Deps) App {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := App{
		ctx:     ctx,
		deps:    deps,
		tabs:    tabs,
		sorts:   make([]int, len(tabs)),
		notices: notice.NewRing(notice.DefaultSize, notice.DefaultTTL),
		spinner: s,
		now:     time.Now,
		width:   80,
		height:  24,
	}
	m.seedPositions()
	if len(tabs) > 0 {
		m.view = m.mount(0)
	}
	return m
}

func (m App) seedPositions() {
	if m.deps.Positions == nil {
		return
	}
	fs := m.deps.Controller.Store()
	for _, t := range m.tabs {
		p, ok, err := m.deps.Positions.LoadPosition(t.FeedID)
		if err != nil {
			logging.Warn("load saved position", "feed", t.Name, "error", err)
			continue
		}
		if !ok {
			continue
		}
		fs.SetInViewKeys(t.FeedID, p.InView)
		for k, h := range p.Heights {
			fs.UpdateItemHeight(t.FeedID, k, h)
		}
	}
}

func (m App) mount(i int) *FeedView {
	opts := rowOptions{
		layout:        m.deps.Settings.FeedLayout,
		hideDownvotes: m.deps.Settings.HideDownvotes,
		now:           m.now(),
	}
	v := newFeedView(m.deps.Controller.Store(), m.tabs[i].FeedID, scroll.Config{
		Manual:         m.deps.Settings.InfiniteScrollingDisabled,
		PrefetchMargin: m.deps.PrefetchMargin,
	}, opts)
	v.setSize(m.width, m.height-chromeRows)
	return v
}

// Init starts the spinner, loads the first tab and preloads the rest.
func (m App) Init() tea.Cmd {
	if m.view == nil {
		return nil
	}
	m.view.refresh()
	return tea.Batch(m.spinner.Tick, m.fetchFirst(m.active), m.preload())
}

// Update handles messages.
func (m App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == nil {
			return m, nil
		}
		m.view.setSize(m.width, m.height-chromeRows)
		return m, m.refresh()

	case FirstPageLoaded:
		if msg.Err != nil {
			m.notices.Errorf(m.now(), "%s: %v", m.tabName(msg.FeedID), rootCause(msg.Err))
		}
		return m, m.refreshIf(msg.FeedID)

	case NextPageLoaded:
		if m.view != nil && msg.FeedID == m.view.feedID {
			t := m.view.trigger
			gen := msg.Result.Generation
			switch {
			case msg.Err != nil:
				t.Failed(gen)
			case msg.Result.Outcome == pagination.OutcomeApplied:
				t.Succeeded(gen, msg.Result.Exhausted)
			case msg.Result.Outcome == pagination.OutcomeExhausted:
				t.Succeeded(gen, true)
			case msg.Result.Outcome == pagination.OutcomeNotLoaded:
				t.Failed(gen)
			case msg.Result.Outcome == pagination.OutcomeInFlight:
				// The request already running reports for this view.
			}
		}
		if msg.Err != nil {
			m.notices.Errorf(m.now(), "%s: %v", m.tabName(msg.FeedID), rootCause(msg.Err))
		}
		return m, m.refreshIf(msg.FeedID)

	case PreloadComplete:
		if msg.Err != nil {
			logging.Warn("preload", "error", msg.Err)
		}
		return m, m.refresh()

	case MutationSent:
		if msg.Err != nil {
			m.notices.Errorf(m.now(), "%s failed: %v", msg.Class, rootCause(msg.Err))
		}
		return m, m.refresh()

	case frameMsg:
		if m.view == nil || !m.view.animating {
			return m, nil
		}
		moving := m.view.step()
		cmd := m.layout()
		if moving {
			return m, tea.Batch(cmd, frame())
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		m.saveAll()
		return m, tea.Quit
	}
	if m.view == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Down):
		return m, m.view.move(1)
	case key.Matches(msg, keys.Up):
		return m, m.view.move(-1)

	case key.Matches(msg, keys.Upvote):
		return m, m.vote(feed.ActionUp)
	case key.Matches(msg, keys.Downvote):
		return m, m.vote(feed.ActionDown)
	case key.Matches(msg, keys.Hide):
		return m, m.remove(optimistic.ClassHide)
	case key.Matches(msg, keys.Delete):
		return m, m.remove(optimistic.ClassDelete)

	case key.Matches(msg, keys.More):
		if m.view.trigger.LoadMore() {
			return m, m.fetchNext(m.active)
		}
	case key.Matches(msg, keys.Reload):
		return m, m.reload(m.active)
	case key.Matches(msg, keys.Sort):
		if len(m.tabs[m.active].Sorts) < 2 {
			return m, nil
		}
		m.sorts[m.active]++
		m.notices.Push(notice.Info, "sort: "+m.tabs[m.active].sort(m.sorts[m.active]), m.now())
		return m, m.reload(m.active)

	case key.Matches(msg, keys.NextTab):
		return m.switchTab((m.active + 1) % len(m.tabs))
	case key.Matches(msg, keys.PrevTab):
		return m.switchTab((m.active + len(m.tabs) - 1) % len(m.tabs))

	case key.Matches(msg, keys.Dismiss):
		if n, ok := m.notices.Latest(m.now()); ok {
			m.notices.Dismiss(n.ID)
		}
	}
	return m, nil
}

// switchTab unmounts the current view and mounts tab i. The new view
// restores from whatever the store remembers.
func (m App) switchTab(i int) (tea.Model, tea.Cmd) {
	if i == m.active {
		return m, nil
	}
	m.view.unmount()
	m.active = i
	m.view = m.mount(i)
	return m, tea.Batch(m.refresh(), m.fetchFirst(i))
}

// refresh re-reads the active feed and starts a next-page fetch if the
// sentinel asks for one.
func (m App) refresh() tea.Cmd {
	if m.view == nil {
		return nil
	}
	if m.view.refresh() {
		return m.fetchNext(m.active)
	}
	return nil
}

func (m App) refreshIf(feedID string) tea.Cmd {
	if m.view == nil || m.view.feedID != feedID {
		return nil
	}
	return m.refresh()
}

func (m App) layout() tea.Cmd {
	if m.view.layout() {
		return m.fetchNext(m.active)
	}
	return nil
}

func (m App) mutable() bool {
	return m.deps.Server != nil && !m.tabs[m.active].ReadOnly
}

func (m App) vote(action feed.VoteAction) tea.Cmd {
	it, ok := m.view.Selected()
	if !ok || !m.mutable() {
		return nil
	}
	tok, err := m.deps.Bridge.ApplyVote(m.view.feedID, it.Key, action)
	return m.send(tok, err)
}

func (m App) remove(class optimistic.Class) tea.Cmd {
	it, ok := m.view.Selected()
	if !ok || !m.mutable() {
		return nil
	}
	tok, err := m.deps.Bridge.ApplyRemoval(it.Key, class)
	return m.send(tok, err)
}

// send applies the optimistic change to the view now and runs the server
// round-trip in a command.
func (m App) send(tok *optimistic.Token, err error) tea.Cmd {
	switch {
	case errors.Is(err, optimistic.ErrPending):
		return nil
	case errors.Is(err, optimistic.ErrNotVotable):
		m.notices.Push(notice.Info, "this item cannot be voted on", m.now())
		return nil
	case err != nil:
		m.notices.Errorf(m.now(), "%v", err)
		return nil
	}

	refresh := m.refresh()
	bridge, srv, ctx := m.deps.Bridge, m.deps.Server, m.ctx
	return tea.Batch(refresh, func() tea.Msg {
		err := bridge.Send(ctx, srv, tok)
		return MutationSent{Key: tok.Key(), Class: tok.Class(), Err: err}
	})
}

func (m App) fetchFirst(i int) tea.Cmd {
	t := m.tabs[i]
	fetch := t.Source(t.sort(m.sorts[i]))
	ctl, ctx := m.deps.Controller, m.ctx
	return func() tea.Msg {
		res, err := ctl.FetchFirstPage(ctx, t.FeedID, fetch)
		return FirstPageLoaded{FeedID: t.FeedID, Result: res, Err: err}
	}
}

func (m App) fetchNext(i int) tea.Cmd {
	t := m.tabs[i]
	fetch := t.Source(t.sort(m.sorts[i]))
	ctl, ctx := m.deps.Controller, m.ctx
	return func() tea.Msg {
		res, err := ctl.FetchNextPage(ctx, t.FeedID, fetch)
		return NextPageLoaded{FeedID: t.FeedID, Result: res, Err: err}
	}
}

func (m App) reload(i int) tea.Cmd {
	t := m.tabs[i]
	fetch := t.Source(t.sort(m.sorts[i]))
	ctl, ctx := m.deps.Controller, m.ctx
	return func() tea.Msg {
		res, err := ctl.Reload(ctx, t.FeedID, fetch)
		return FirstPageLoaded{FeedID: t.FeedID, Result: res, Err: err}
	}
}

// preload fetches every tab but the active one.
func (m App) preload() tea.Cmd {
	var reqs []pagination.Request
	for i, t := range m.tabs {
		if i == m.active {
			continue
		}
		reqs = append(reqs, pagination.Request{FeedID: t.FeedID, Fetch: t.Source(t.sort(m.sorts[i]))})
	}
	if len(reqs) == 0 {
		return nil
	}
	ctl, ctx := m.deps.Controller, m.ctx
	return func() tea.Msg {
		return PreloadComplete{Err: ctl.Preload(ctx, reqs)}
	}
}

// saveAll snapshots the active view and writes every loaded feed's
// position.
func (m App) saveAll() {
	if m.view != nil {
		m.view.unmount()
	}
	if m.deps.Positions == nil {
		return
	}
	fs := m.deps.Controller.Store()
	for _, t := range m.tabs {
		f, ok := fs.Get(t.FeedID)
		if !ok || !f.Loaded {
			continue
		}
		if err := m.deps.Positions.SavePosition(t.FeedID, store.PositionOf(f)); err != nil {
			logging.Error("save position", "feed", t.Name, "error", err)
		}
	}
}

func (m App) tabName(feedID string) string {
	for _, t := range m.tabs {
		if t.FeedID == feedID {
			return t.Name
		}
	}
	return feedID
}

// rootCause strips the FetchError and MutationError wrappers for display.
func rootCause(err error) error {
	var fe *pagination.FetchError
	if errors.As(err, &fe) {
		return fe.Err
	}
	var me *optimistic.MutationError
	if errors.As(err, &me) {
		return me.Err
	}
	return err
}

// View renders the UI.
func (m App) View() string {
	if m.view == nil {
		return HelpStyle.Render("no feeds configured")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.view.View(m.spinner.View()),
		m.renderNotice(),
		m.renderStatusBar(),
	)
}

func (m App) renderHeader() string {
	var b strings.Builder
	for i, t := range m.tabs {
		label := t.Name
		if s := t.sort(m.sorts[i]); s != "" && i == m.active {
			label += " · " + s
		}
		if i == m.active {
			b.WriteString(TabActive.Render(label))
		} else {
			b.WriteString(TabInactive.Render(label))
		}
	}
	return b.String()
}

func (m App) renderNotice() string {
	n, ok := m.notices.Latest(m.now())
	if !ok {
		return ""
	}
	if n.Level == notice.Error {
		return ErrorStyle.Render(n.Text)
	}
	return InfoStyle.Render(n.Text)
}

func (m App) renderStatusBar() string {
	count := 0
	if m.view != nil {
		count = len(m.view.snap.Items)
	}
	hints := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(" move"),
		StatusBarKey.Render("u/d") + StatusBarText.Render(" vote"),
		StatusBarKey.Render("h/x") + StatusBarText.Render(" hide/delete"),
		StatusBarKey.Render("r") + StatusBarText.Render(" reload"),
		StatusBarKey.Render("s") + StatusBarText.Render(" sort"),
		StatusBarKey.Render("tab") + StatusBarText.Render(" feed"),
		StatusBarKey.Render("q") + StatusBarText.Render(" quit"),
	}
	if m.deps.Settings.InfiniteScrollingDisabled {
		hints = slices.Insert(hints, 4, StatusBarKey.Render("m")+StatusBarText.Render(" more"))
	}
	// Drop hints that would wrap the bar.
	line := StatusBarText.Render(fmt.Sprintf("%d items", count))
	for _, h := range hints {
		if lipgloss.Width(line)+2+lipgloss.Width(h) > m.width-2 {
			break
		}
		line += "  " + h
	}
	return StatusBar.Width(m.width).Render(line)
}

// Cursor returns the selected index in the active view.
func (m App) Cursor() int {
	if m.view == nil {
		return 0
	}
	return m.view.cursor
}

// Items returns the active view's items.
func (m App) Items() []feed.Item {
	if m.view == nil {
		return nil
	}
	return m.view.snap.Items
}

// Active returns the index of the selected tab.
func (m App) Active() int { return m.active }

// FeedView returns the mounted feed view.
func (m App) FeedView() *FeedView { return m.view }

// Notices returns the notification ring.
func (m App) Notices() *notice.Ring { return m.notices }
