package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/convault/convault/internal/clipboard"
	"github.com/convault/convault/internal/logging"
	"github.com/convault/convault/internal/vault"
)

// Options configures the conversation browser
type Options struct {
	Profile         string
	ShowPreview     bool
	PreviewMessages int
}

// Browser is the root bubbletea model: a filterable conversation list with
// a preview pane, backed directly by the store.
type Browser struct {
	store   *vault.Store
	profile string

	filter      *Filter
	confirm     *ConfirmDialog
	titleDialog *TitleDialog
	preview     *Preview
	showPreview bool

	metas   []vault.Meta
	visible []vault.Meta
	cursor  int
	scroll  int

	width  int
	height int

	status      string
	statusIsErr bool
	syncing     bool
	animFrame   int
	lastSync    time.Time

	events      <-chan vault.Event
	unsubscribe func()
}

// NewBrowser creates the browser model for an already-loaded store
func NewBrowser(store *vault.Store, opts Options) *Browser {
	events, unsubscribe := store.Subscribe()
	b := &Browser{
		store:       store,
		profile:     vault.GetEffectiveProfile(opts.Profile),
		filter:      NewFilter(),
		confirm:     NewConfirmDialog(),
		titleDialog: NewTitleDialog(),
		preview:     NewPreview(opts.PreviewMessages),
		showPreview: opts.ShowPreview,
		events:      events,
		unsubscribe: unsubscribe,
	}
	b.refreshList()
	return b
}

// Messages

type storeEventMsg vault.Event

type eventsClosedMsg struct{}

type previewLoadedMsg struct {
	meta vault.Meta
	body json.RawMessage
	err  error
}

type syncDoneMsg struct {
	result vault.SyncResult
	err    error
}

type deleteDoneMsg struct {
	id      string
	deleted bool
	err     error
}

type titleDoneMsg struct {
	id    string
	title string
	err   error
}

type copyDoneMsg struct {
	result *clipboard.CopyResult
	err    error
}

type spinTickMsg struct{}

// spinnerFrames is the braille rotation shown while a sync runs.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

func spinTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return spinTickMsg{}
	})
}

// Commands

func (b *Browser) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		ev, open := <-b.events
		if !open {
			return eventsClosedMsg{}
		}
		return storeEventMsg(ev)
	}
}

func (b *Browser) loadPreviewCmd(meta vault.Meta) tea.Cmd {
	return func() tea.Msg {
		body, _, err := b.store.Load(context.Background(), meta.ID, false)
		return previewLoadedMsg{meta: meta, body: body, err: err}
	}
}

func (b *Browser) syncCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := b.store.Sync(context.Background())
		return syncDoneMsg{result: result, err: err}
	}
}

func (b *Browser) deleteCmd(id string) tea.Cmd {
	return func() tea.Msg {
		deleted, err := b.store.Delete(context.Background(), id)
		return deleteDoneMsg{id: id, deleted: deleted, err: err}
	}
}

func (b *Browser) retitleCmd(id, title string) tea.Cmd {
	return func() tea.Msg {
		err := b.store.UpdateTitle(context.Background(), id, title)
		return titleDoneMsg{id: id, title: title, err: err}
	}
}

func (b *Browser) copyCmd(meta vault.Meta) tea.Cmd {
	return func() tea.Msg {
		body, _, err := b.store.Load(context.Background(), meta.ID, false)
		if err != nil {
			return copyDoneMsg{err: err}
		}
		text := transcriptText(meta, body)
		result, err := clipboard.Copy(text)
		return copyDoneMsg{result: result, err: err}
	}
}

// transcriptText flattens a conversation for the clipboard; bodies without a
// message tree copy as raw JSON.
func transcriptText(meta vault.Meta, body json.RawMessage) string {
	conv, err := vault.ParseConversation(body)
	if err != nil || conv == nil {
		return string(body)
	}
	var b strings.Builder
	b.WriteString("# " + meta.Title + "\n")
	for _, entry := range conv.Transcript() {
		b.WriteString("\n" + entry.Role + ":\n" + entry.Text + "\n")
	}
	return b.String()
}

// Init implements tea.Model
func (b *Browser) Init() tea.Cmd {
	return b.listenForEvents()
}

// refreshList re-reads the index and reapplies the filter
func (b *Browser) refreshList() {
	result, err := b.store.List(vault.ListOptions{})
	if err != nil {
		b.setStatus("list failed: "+err.Error(), true)
		return
	}
	b.metas = result.Items
	b.applyFilter()
}

func (b *Browser) applyFilter() {
	b.visible = filterMetas(b.metas, b.filter.Query())
	if b.cursor >= len(b.visible) {
		b.cursor = len(b.visible) - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
}

func (b *Browser) setStatus(msg string, isErr bool) {
	b.status = msg
	b.statusIsErr = isErr
	if isErr {
		logging.ForComponent(logging.CompUI).Warn("browser_status", "message", msg)
	}
}

func (b *Browser) selected() (vault.Meta, bool) {
	if b.cursor < 0 || b.cursor >= len(b.visible) {
		return vault.Meta{}, false
	}
	return b.visible[b.cursor], true
}

// Update implements tea.Model
func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.confirm.SetSize(msg.Width, msg.Height)
		b.titleDialog.SetSize(msg.Width, msg.Height)
		b.preview.SetSize(b.previewWidth(), msg.Height-4)
		return b, nil

	case storeEventMsg:
		return b, tea.Batch(b.handleStoreEvent(vault.Event(msg)), b.listenForEvents())

	case eventsClosedMsg:
		return b, tea.Quit

	case previewLoadedMsg:
		if msg.err != nil {
			b.preview.SetError(msg.meta, msg.err)
		} else {
			b.preview.SetContent(msg.meta, msg.body)
		}
		return b, nil

	case syncDoneMsg:
		b.syncing = false
		if msg.err != nil {
			b.setStatus("sync failed: "+msg.err.Error(), true)
		} else {
			b.lastSync = time.Now()
			b.setStatus(fmt.Sprintf("synced %d, removed %d", msg.result.Synced, msg.result.Removed), false)
		}
		b.refreshList()
		return b, nil

	case deleteDoneMsg:
		switch {
		case msg.err != nil:
			b.setStatus("delete failed: "+msg.err.Error(), true)
		case !msg.deleted:
			b.setStatus("already deleted", false)
		default:
			b.setStatus("deleted "+msg.id, false)
			b.preview.Clear()
		}
		b.refreshList()
		return b, nil

	case titleDoneMsg:
		if msg.err != nil {
			b.setStatus("rename failed: "+msg.err.Error(), true)
		} else {
			b.setStatus("renamed to "+msg.title, false)
		}
		b.refreshList()
		return b, nil

	case copyDoneMsg:
		if msg.err != nil {
			b.setStatus("copy failed: "+msg.err.Error(), true)
		} else {
			b.setStatus(fmt.Sprintf("copied %d lines via %s", msg.result.LineCount, msg.result.Method), false)
		}
		return b, nil

	case spinTickMsg:
		if !b.syncing {
			return b, nil
		}
		b.animFrame = (b.animFrame + 1) % len(spinnerFrames)
		return b, spinTick()

	case tea.KeyMsg:
		return b.handleKey(msg)
	}

	return b, nil
}

func (b *Browser) handleStoreEvent(ev vault.Event) tea.Cmd {
	switch ev.Type {
	case vault.EventSyncStarted:
		b.syncing = true
		return spinTick()
	case vault.EventSyncCompleted:
		b.syncing = false
		b.lastSync = ev.Time
		b.refreshList()
	case vault.EventSyncError:
		b.syncing = false
		b.setStatus("sync failed: "+ev.Error, true)
		b.refreshList()
	case vault.EventIndexLoaded, vault.EventConversationSaved,
		vault.EventTitleUpdated, vault.EventConversationDeleted:
		b.refreshList()
	}
	return nil
}

func (b *Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Modal dialogs swallow all keys while visible
	if b.confirm.IsVisible() {
		switch msg.String() {
		case "y", "enter":
			id := b.confirm.TargetID()
			b.confirm.Hide()
			return b, b.deleteCmd(id)
		case "n", "esc":
			b.confirm.Hide()
		}
		return b, nil
	}

	if b.titleDialog.IsVisible() {
		switch msg.String() {
		case "enter":
			if err := b.titleDialog.Validate(); err != nil {
				b.setStatus(err.Error(), true)
				return b, nil
			}
			id, title := b.titleDialog.TargetID(), b.titleDialog.Value()
			b.titleDialog.Hide()
			return b, b.retitleCmd(id, title)
		case "esc":
			b.titleDialog.Hide()
			return b, nil
		default:
			return b, b.titleDialog.Update(msg)
		}
	}

	if b.filter.Active() {
		switch msg.String() {
		case "enter":
			b.filter.Deactivate()
			return b, nil
		case "esc":
			b.filter.Clear()
			b.applyFilter()
			return b, nil
		default:
			cmd := b.filter.Update(msg)
			b.applyFilter()
			return b, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		b.unsubscribe()
		return b, tea.Quit

	case "/":
		b.filter.Activate()
		return b, nil

	case "esc":
		if b.filter.Query() != "" {
			b.filter.Clear()
			b.applyFilter()
		}
		return b, nil

	case "up", "k":
		if b.cursor > 0 {
			b.cursor--
		}
		return b, nil

	case "down", "j":
		if b.cursor < len(b.visible)-1 {
			b.cursor++
		}
		return b, nil

	case "g", "home":
		b.cursor = 0
		return b, nil

	case "G", "end":
		b.cursor = len(b.visible) - 1
		if b.cursor < 0 {
			b.cursor = 0
		}
		return b, nil

	case "enter":
		if meta, ok := b.selected(); ok && b.showPreview {
			return b, b.loadPreviewCmd(meta)
		}
		return b, nil

	case "s":
		if !b.syncing {
			b.syncing = true
			b.setStatus("syncing...", false)
			return b, tea.Batch(b.syncCmd(), spinTick())
		}
		return b, nil

	case "d":
		if meta, ok := b.selected(); ok {
			b.confirm.ShowDelete(meta.ID, meta.Title)
		}
		return b, nil

	case "t":
		if meta, ok := b.selected(); ok {
			b.titleDialog.Show(meta.ID, meta.Title)
		}
		return b, nil

	case "y":
		if meta, ok := b.selected(); ok {
			return b, b.copyCmd(meta)
		}
		return b, nil

	case "r":
		b.refreshList()
		b.setStatus("refreshed", false)
		return b, nil
	}

	return b, nil
}

func (b *Browser) previewWidth() int {
	if !b.showPreview {
		return 0
	}
	w := b.width / 2
	if w < 30 {
		w = 30
	}
	return w
}

// View implements tea.Model
func (b *Browser) View() string {
	if b.confirm.IsVisible() {
		return b.confirm.View()
	}
	if b.titleDialog.IsVisible() {
		return b.titleDialog.View()
	}

	header := b.headerView()
	filterBar := b.filter.View()
	menuBar := b.menuView()

	chrome := lipgloss.Height(header) + lipgloss.Height(menuBar) + 1
	if filterBar != "" {
		chrome += lipgloss.Height(filterBar)
	}
	listHeight := b.height - chrome
	if listHeight < 3 {
		listHeight = 3
	}

	listWidth := b.width
	if b.showPreview {
		listWidth = b.width - b.previewWidth()
	}
	list := b.listView(listWidth, listHeight)

	body := list
	if b.showPreview {
		b.preview.SetSize(b.previewWidth(), listHeight)
		body = joinPanes(list, b.preview.View())
	}

	parts := []string{header}
	if filterBar != "" {
		parts = append(parts, filterBar)
	}
	parts = append(parts, body, b.statusView(), menuBar)
	return strings.Join(parts, "\n")
}

func (b *Browser) headerView() string {
	title := TitleStyle.Render("convault")
	profile := InfoStyle.Render(b.profile)
	count := ListCountStyle.Render(fmt.Sprintf("%d/%d conversations", len(b.visible), len(b.metas)))
	dirty := ""
	if n := b.store.DirtyCount(); n > 0 {
		dirty = "  " + ListDirtyStyle.Render(fmt.Sprintf("● %d unsynced", n))
	}
	return title + "  " + profile + "  " + count + dirty
}

func (b *Browser) listView(width, height int) string {
	if len(b.visible) == 0 {
		empty := DimStyle.Render("no conversations")
		if b.filter.Query() != "" {
			empty = DimStyle.Render("no matches for " + b.filter.Query())
		}
		return lipgloss.NewStyle().Width(width).Height(height).Render(empty)
	}

	// Keep the cursor in the visible window
	if b.cursor < b.scroll {
		b.scroll = b.cursor
	}
	if b.cursor >= b.scroll+height {
		b.scroll = b.cursor - height + 1
	}

	var rows []string
	end := b.scroll + height
	if end > len(b.visible) {
		end = len(b.visible)
	}
	for i := b.scroll; i < end; i++ {
		rows = append(rows, b.renderRow(b.visible[i], i == b.cursor, width))
	}
	return lipgloss.NewStyle().Width(width).Height(height).
		Render(strings.Join(rows, "\n"))
}

func (b *Browser) renderRow(meta vault.Meta, selected bool, width int) string {
	count := fmt.Sprintf("%3d", meta.MessageCount)
	age := ""
	if meta.UpdateTime != nil {
		age = relativeTime(time.Unix(int64(*meta.UpdateTime), 0))
	}

	// indicator + spaces + count + age padding
	titleWidth := width - 2 - 4 - len(count) - len(age) - 4
	if titleWidth < 8 {
		titleWidth = 8
	}
	title := truncateLine(meta.Title, titleWidth)

	line := fmt.Sprintf("%s %s  %s  %s",
		DirtyIndicator(meta.Dirty), padRight(title, titleWidth), count,
		TimestampStyle.Render(age))

	if selected {
		return ListItemSelectedStyle.Render("› ") + line
	}
	return ListItemStyle.Render(line)
}

func (b *Browser) statusView() string {
	switch {
	case b.syncing:
		return WarningStyle.Render(spinnerFrames[b.animFrame] + " syncing...")
	case b.statusIsErr:
		return ErrorStyle.Render(b.status)
	case b.status != "":
		line := SuccessStyle.Render(b.status)
		if !b.lastSync.IsZero() {
			line += "  " + TimestampStyle.Render("last sync "+relativeTime(b.lastSync))
		}
		return line
	case !b.lastSync.IsZero():
		return TimestampStyle.Render("last sync " + relativeTime(b.lastSync))
	default:
		return ""
	}
}

func (b *Browser) menuView() string {
	items := []string{
		MenuKey("/", "filter"),
		MenuKey("enter", "preview"),
		MenuKey("s", "sync"),
		MenuKey("t", "rename"),
		MenuKey("y", "copy"),
		MenuKey("d", "delete"),
		MenuKey("q", "quit"),
	}
	return MenuBarStyle.Render(strings.Join(items, "  "))
}

// padRight pads s with spaces to exactly width terminal cells
func padRight(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// relativeTime formats a timestamp as a short age like "5m" or "3d"
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
