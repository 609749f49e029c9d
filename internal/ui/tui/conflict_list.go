package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/padsync/internal/resolve"
	"github.com/klauern/padsync/internal/sync"
	"github.com/klauern/padsync/internal/ui"
)

// ErrCancelled is returned by Resolver when the user leaves without applying.
var ErrCancelled = errors.New("conflict resolution cancelled")

// ConflictAction represents the action to perform after conflict resolution.
type ConflictAction int

const (
	// ConflictActionNone means no action was taken (user quit).
	ConflictActionNone ConflictAction = iota
	// ConflictActionResolve means the user decided every conflict and wants to apply.
	ConflictActionResolve
	// ConflictActionCancel means the user cancelled.
	ConflictActionCancel
)

// ConflictListResult contains the result of the conflict resolution interaction.
type ConflictListResult struct {
	Action    ConflictAction
	Decisions map[string]resolve.Decision
}

// conflictPhase represents the current phase of conflict resolution.
type conflictPhase int

const (
	phaseList conflictPhase = iota
	phaseDetail
)

// conflictKeyMap defines the key bindings for conflict resolution.
type conflictKeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Select      key.Binding
	Local       key.Binding
	Remote      key.Binding
	NextField   key.Binding
	FieldLocal  key.Binding
	FieldRemote key.Binding
	Confirm     key.Binding
	Back        key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultConflictKeyMap() conflictKeyMap {
	return conflictKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "view details"),
		),
		Local: key.NewBinding(
			key.WithKeys("l", "1"),
			key.WithHelp("l/1", "local"),
		),
		Remote: key.NewBinding(
			key.WithKeys("r", "2"),
			key.WithHelp("r/2", "remote"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next field"),
		),
		FieldLocal: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "field local"),
		),
		FieldRemote: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "field remote"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "apply decisions"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "esc"),
			key.WithHelp("b/esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ConflictListModel is the BubbleTea model for conflict resolution.
type ConflictListModel struct {
	conflicts   []sync.Conflict
	decisions   map[string]resolve.Decision
	table       table.Model
	viewport    viewport.Model
	keys        conflictKeyMap
	result      ConflictListResult
	phase       conflictPhase
	cursor      int
	fieldCursor int
	showHelp    bool
	confirmMode bool
	width       int
	height      int
	quitting    bool
	ready       bool
}

// Styles for the conflict resolution TUI.
var conflictStyles = struct {
	Title        lipgloss.Style
	Help         lipgloss.Style
	Status       lipgloss.Style
	LocalLabel   lipgloss.Style
	RemoteLabel  lipgloss.Style
	Context      lipgloss.Style
	Info         lipgloss.Style
	Resolved     lipgloss.Style
	Confirm      lipgloss.Style
	FieldCursor  lipgloss.Style
	SectionTitle lipgloss.Style
}{
	Title:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	LocalLabel:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
	RemoteLabel:  lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
	Context:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	Info:         lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
	Resolved:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Confirm:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(0, 1),
	FieldCursor:  lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true),
	SectionTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(1, 0),
}

// NewConflictListModel creates a new conflict resolution model.
func NewConflictListModel(conflicts []sync.Conflict) ConflictListModel {
	columns := []table.Column{
		{Title: "Status", Width: 8},
		{Title: "Item", Width: 24},
		{Title: "Kind", Width: 12},
		{Title: "Fields", Width: 24},
		{Title: "Decision", Width: 20},
	}

	rows := make([]table.Row, len(conflicts))
	for i, c := range conflicts {
		rows[i] = buildConflictRow(c, nil)
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return ConflictListModel{
		conflicts: conflicts,
		decisions: make(map[string]resolve.Decision),
		table:     t,
		keys:      defaultConflictKeyMap(),
		phase:     phaseList,
	}
}

func buildConflictRow(c sync.Conflict, d *resolve.Decision) table.Row {
	status := ui.SymbolPending
	decision := "-"
	if d != nil {
		status = ui.SymbolSuccess
		decision = describeDecision(c, *d)
	}

	fields := "-"
	if len(c.Fields) > 0 {
		names := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			names[i] = f.Field
		}
		fields = truncateText(strings.Join(names, ", "), 24)
	}

	return table.Row{
		status,
		truncateText(string(c.Store)+" "+c.Key, 24),
		string(c.Kind),
		fields,
		decision,
	}
}

func describeDecision(c sync.Conflict, d resolve.Decision) string {
	label := c.LocalLabel()
	if d.Choice == resolve.Remote {
		label = c.RemoteLabel()
	}
	if len(d.Fields) > 0 {
		label += " (mixed)"
	}
	return label
}

// Init implements tea.Model.
func (m ConflictListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConflictListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.phase {
	case phaseList:
		return m.updateList(msg)
	case phaseDetail:
		return m.updateDetail(msg)
	}
	return m, nil
}

func (m ConflictListModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(msg.Height-10, 5))

	case tea.KeyMsg:
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = ConflictListResult{
					Action:    ConflictActionResolve,
					Decisions: m.buildDecisions(),
				}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
				return m, nil
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Select):
			if len(m.conflicts) > 0 {
				m.cursor = m.table.Cursor()
				m.fieldCursor = 0
				m.phase = phaseDetail
				m.ready = false
				if m.width > 0 {
					m.initViewport()
				}
				return m, nil
			}

		case key.Matches(msg, m.keys.Local):
			if len(m.conflicts) > 0 {
				m.decideAt(m.table.Cursor(), resolve.Local)
				return m, nil
			}

		case key.Matches(msg, m.keys.Remote):
			if len(m.conflicts) > 0 {
				m.decideAt(m.table.Cursor(), resolve.Remote)
				return m, nil
			}

		case key.Matches(msg, m.keys.Confirm):
			if m.allResolved() {
				m.confirmMode = true
				return m, nil
			}

		case key.Matches(msg, m.keys.Back):
			m.result = ConflictListResult{Action: ConflictActionCancel}
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *ConflictListModel) initViewport() {
	headerHeight := 4
	footerHeight := 4
	h := max(m.height-headerHeight-footerHeight, 5)
	m.viewport = viewport.New(max(m.width-2, 20), h)
	m.viewport.SetContent(m.buildDetailContent())
	m.ready = true
}

func (m ConflictListModel) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.initViewport()
		} else {
			m.viewport.Width = max(msg.Width-2, 20)
			m.viewport.Height = max(msg.Height-8, 5)
			m.viewport.SetContent(m.buildDetailContent())
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			m.phase = phaseList
			return m, nil

		case key.Matches(msg, m.keys.NextField):
			if n := len(m.conflicts[m.cursor].Fields); n > 0 {
				m.fieldCursor = (m.fieldCursor + 1) % n
			}
			m.refreshDetail()
			return m, nil

		case key.Matches(msg, m.keys.FieldLocal):
			m.decideField(m.cursor, m.fieldCursor, resolve.Local)
			m.refreshDetail()
			return m, nil

		case key.Matches(msg, m.keys.FieldRemote):
			m.decideField(m.cursor, m.fieldCursor, resolve.Remote)
			m.refreshDetail()
			return m, nil

		case key.Matches(msg, m.keys.Local):
			m.decideAt(m.cursor, resolve.Local)
			m.refreshDetail()
			return m, nil

		case key.Matches(msg, m.keys.Remote):
			m.decideAt(m.cursor, resolve.Remote)
			m.refreshDetail()
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *ConflictListModel) refreshDetail() {
	if m.ready {
		m.viewport.SetContent(m.buildDetailContent())
	}
}

// decideAt sets the whole-item decision, clearing field overrides.
func (m *ConflictListModel) decideAt(idx int, choice resolve.Choice) {
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}
	m.decisions[m.conflicts[idx].ID()] = resolve.Decision{Choice: choice}
	m.updateTableRow(idx)
}

// decideField overrides the choice of one field of a field conflict. An
// undecided conflict defaults to local for its other fields.
func (m *ConflictListModel) decideField(idx, field int, choice resolve.Choice) {
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}
	c := m.conflicts[idx]
	if c.Kind != sync.ConflictField || field < 0 || field >= len(c.Fields) {
		m.decideAt(idx, choice)
		return
	}

	d, ok := m.decisions[c.ID()]
	if !ok {
		d = resolve.Decision{Choice: resolve.Local}
	}
	fields := make(map[string]resolve.Choice, len(d.Fields)+1)
	for k, v := range d.Fields {
		fields[k] = v
	}
	name := c.Fields[field].Field
	if choice == d.Choice {
		delete(fields, name)
	} else {
		fields[name] = choice
	}
	if len(fields) == 0 {
		fields = nil
	}
	d.Fields = fields
	m.decisions[c.ID()] = d
	m.updateTableRow(idx)
}

func (m *ConflictListModel) updateTableRow(idx int) {
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}

	c := m.conflicts[idx]
	var d *resolve.Decision
	if dec, ok := m.decisions[c.ID()]; ok {
		d = &dec
	}

	rows := m.table.Rows()
	if idx < len(rows) {
		rows[idx] = buildConflictRow(c, d)
		m.table.SetRows(rows)
	}
}

func (m ConflictListModel) allResolved() bool {
	for _, c := range m.conflicts {
		if _, ok := m.decisions[c.ID()]; !ok {
			return false
		}
	}
	return len(m.conflicts) > 0
}

func (m ConflictListModel) buildDecisions() map[string]resolve.Decision {
	out := make(map[string]resolve.Decision, len(m.decisions))
	for _, c := range m.conflicts {
		if d, ok := m.decisions[c.ID()]; ok {
			out[c.ID()] = d
		}
	}
	return out
}

func (m ConflictListModel) buildDetailContent() string {
	if m.cursor < 0 || m.cursor >= len(m.conflicts) {
		return "No conflict selected"
	}

	c := m.conflicts[m.cursor]
	d, decided := m.decisions[c.ID()]
	var b strings.Builder

	b.WriteString(conflictStyles.SectionTitle.Render("Conflict Details"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Item: %s %s\n", c.Store, c.Key)
	fmt.Fprintf(&b, "  Kind: %s\n", c.Kind)
	fmt.Fprintf(&b, "  %s\n", c.Summary())

	if decided {
		b.WriteString("\n")
		b.WriteString(conflictStyles.Resolved.Render("  Decision: " + describeDecision(c, d)))
		b.WriteString("\n")
	}

	colWidth := max((m.viewport.Width-20)/2, 16)

	switch c.Kind {
	case sync.ConflictField:
		b.WriteString("\n")
		b.WriteString(conflictStyles.SectionTitle.Render("Conflicting Fields"))
		b.WriteString("\n")
		b.WriteString(padRight("", 16))
		b.WriteString(conflictStyles.LocalLabel.Render(padRight("Local", colWidth)))
		b.WriteString("  ")
		b.WriteString(conflictStyles.RemoteLabel.Render("Remote"))
		b.WriteString("\n")

		for i, f := range c.Fields {
			marker := "  "
			if i == m.fieldCursor {
				marker = conflictStyles.FieldCursor.Render("> ")
			}
			chosen := ""
			if decided {
				chosen = " [" + string(d.For(f.Field)) + "]"
			}

			local := wrapText(ui.FormatValue(f.LocalValue), colWidth, 3)
			remote := wrapText(ui.FormatValue(f.RemoteValue), colWidth, 3)
			n := max(len(local), len(remote))
			local, remote = padLines(local, n), padLines(remote, n)
			for j := range n {
				name := ""
				if j == 0 {
					name = truncateText(f.Field+chosen, 14)
				}
				if j == 0 {
					b.WriteString(marker)
				} else {
					b.WriteString("  ")
				}
				b.WriteString(padRight(name, 14))
				b.WriteString(padRight(local[j], colWidth))
				b.WriteString("  ")
				b.WriteString(remote[j])
				b.WriteString("\n")
			}
			b.WriteString(padRight("", 16))
			b.WriteString(conflictStyles.Context.Render(padRight(ui.FormatTime(f.LocalModifiedAt), colWidth)))
			b.WriteString("  ")
			b.WriteString(conflictStyles.Context.Render(ui.FormatTime(f.RemoteModifiedAt)))
			b.WriteString("\n")
		}

	case sync.ConflictLocalOnly, sync.ConflictRemoteOnly:
		item, title, style := c.Local, "Local Item", conflictStyles.LocalLabel
		if c.Kind == sync.ConflictRemoteOnly {
			item, title, style = c.Remote, "Remote Item", conflictStyles.RemoteLabel
		}
		b.WriteString("\n")
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range ui.ItemFields(item) {
			lines := wrapText(f.Value, colWidth*2, 3)
			for j, line := range lines {
				name := ""
				if j == 0 {
					name = f.Name
				}
				fmt.Fprintf(&b, "  %s%s\n", padRight(name, 14), line)
			}
		}
	}

	b.WriteString("\n")
	hint := fmt.Sprintf("Press: l=%s, r=%s", c.LocalLabel(), c.RemoteLabel())
	if c.Kind == sync.ConflictField {
		hint += ", tab=next field, L/R=choose field"
	}
	b.WriteString(conflictStyles.Info.Render(hint))

	return b.String()
}

// View implements tea.Model.
func (m ConflictListModel) View() string {
	if m.quitting {
		return ""
	}

	switch m.phase {
	case phaseDetail:
		return m.viewDetail()
	default:
		return m.viewList()
	}
}

func (m ConflictListModel) viewList() string {
	var b strings.Builder

	b.WriteString(conflictStyles.Title.Render("Resolve Conflicts"))
	b.WriteString("\n\n")
	b.WriteString(conflictStyles.Info.Render("Decide every conflict before applying"))
	b.WriteString("\n\n")

	if m.confirmMode {
		b.WriteString(m.table.View())
		b.WriteString("\n\n")
		b.WriteString(conflictStyles.Confirm.Render(fmt.Sprintf("Apply %d decision(s)? (y/n)", len(m.decisions))))
		return b.String()
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	resolved := len(m.decisions)
	total := len(m.conflicts)
	status := fmt.Sprintf("%d/%d decided", resolved, total)
	if resolved == total && total > 0 {
		status += " • Press y to apply"
	}
	b.WriteString(conflictStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}

	return b.String()
}

func (m ConflictListModel) viewDetail() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	item := ""
	if m.cursor >= 0 && m.cursor < len(m.conflicts) {
		c := m.conflicts[m.cursor]
		item = string(c.Store) + " " + c.Key
	}
	b.WriteString(conflictStyles.Title.Render("Conflict: " + item))
	b.WriteString("\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	status := fmt.Sprintf("Scroll: %d%%", int(m.viewport.ScrollPercent()*100))
	b.WriteString(conflictStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderDetailHelp())
	} else {
		b.WriteString(m.renderDetailShortHelp())
	}

	return b.String()
}

func (m ConflictListModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"enter details",
		"l local",
		"r remote",
		"y apply",
		"? help",
		"q quit",
	}
	return conflictStyles.Help.Render(strings.Join(keys, " • "))
}

func (m ConflictListModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down
  Enter    View conflict details

Decision:
  l/1      Keep local (discard a remote-only item)
  r/2      Take remote (delete a local-only item)

Actions:
  y        Apply all decisions
  b/Esc    Cancel and go back

General:
  ?        Toggle full help
  q        Quit`
	return conflictStyles.Help.Render(help)
}

func (m ConflictListModel) renderDetailShortHelp() string {
	keys := []string{
		"↑/↓ scroll",
		"l local",
		"r remote",
		"tab field",
		"L/R field side",
		"b back",
		"? help",
	}
	return conflictStyles.Help.Render(strings.Join(keys, " • "))
}

func (m ConflictListModel) renderDetailHelp() string {
	help := `Navigation:
  ↑/k      Scroll up
  ↓/j      Scroll down
  Tab      Select next conflicting field

Decision:
  l/1      Whole item: local side
  r/2      Whole item: remote side
  L        Selected field: local value
  R        Selected field: remote value

Actions:
  b/Esc    Go back to list

General:
  ?        Toggle full help
  q        Quit`
	return conflictStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m ConflictListModel) Result() ConflictListResult {
	return m.result
}

// RunConflictList runs the interactive conflict resolution and returns the result.
func RunConflictList(conflicts []sync.Conflict) (ConflictListResult, error) {
	if len(conflicts) == 0 {
		return ConflictListResult{}, nil
	}

	mdl := NewConflictListModel(conflicts)
	finalModel, err := Run(mdl, tea.WithAltScreen())
	if err != nil {
		return ConflictListResult{}, err
	}

	if m, ok := finalModel.(ConflictListModel); ok {
		return m.Result(), nil
	}

	return ConflictListResult{}, nil
}

// Resolver collects decisions through the conflict list.
type Resolver struct{}

// Resolve implements resolve.Resolver.
func (Resolver) Resolve(_ context.Context, det *sync.Detection) (map[string]resolve.Decision, error) {
	if det == nil || len(det.Conflicts) == 0 {
		return map[string]resolve.Decision{}, nil
	}
	result, err := RunConflictList(det.Conflicts)
	if err != nil {
		return nil, err
	}
	if result.Action != ConflictActionResolve {
		return nil, ErrCancelled
	}
	return result.Decisions, nil
}
