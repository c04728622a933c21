package views

import (
	"fmt"

	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/mrodrigues/memegram/internal/directory"
	"github.com/rivo/tview"
)

// Sidebar shows the current user, a local filter input, and the peer list.
type Sidebar struct {
	*tview.Flex
	userLine *tview.TextView
	filter   *tview.InputField
	list     *tview.Table
	peers    []backend.Profile
	visible  []backend.Profile
	onSelect func(backend.Profile)
}

// NewSidebar creates the peer sidebar.
func NewSidebar() *Sidebar {
	userLine := tview.NewTextView().SetDynamicColors(true)

	filter := tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0).
		SetPlaceholder("find a friend...")

	list := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	list.SetBorder(true).SetTitle(" Friends ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(userLine, 1, 0, false).
		AddItem(filter, 1, 0, false).
		AddItem(list, 0, 1, true)

	sb := &Sidebar{
		Flex:     flex,
		userLine: userLine,
		filter:   filter,
		list:     list,
	}

	filter.SetChangedFunc(func(string) {
		sb.render()
	})
	list.SetSelectedFunc(func(row, col int) {
		idx := row - 1
		if idx >= 0 && idx < len(sb.visible) && sb.onSelect != nil {
			sb.onSelect(sb.visible[idx])
		}
	})

	return sb
}

// SetOnSelect sets the callback when a peer is chosen.
func (sb *Sidebar) SetOnSelect(fn func(backend.Profile)) {
	sb.onSelect = fn
}

// SetCurrentUser updates the signed-in identity line.
func (sb *Sidebar) SetCurrentUser(p backend.Profile) {
	sb.userLine.Clear()
	_, _ = fmt.Fprintf(sb.userLine, " [::b]%s[-:-:-] [::d]%s[-:-:-]",
		tview.Escape(p.Username), tview.Escape(p.Email))
}

// Update replaces the peer list and re-renders through the current filter.
func (sb *Sidebar) Update(peers []backend.Profile) {
	sb.peers = peers
	sb.render()
}

func (sb *Sidebar) render() {
	sb.visible = directory.Filter(sb.peers, sb.filter.GetText())
	sb.list.Clear()

	sb.list.SetCell(0, 0, tview.NewTableCell(
		fmt.Sprintf(" Friends (%d)", len(sb.visible))).
		SetSelectable(false).
		SetTextColor(tview.Styles.SecondaryTextColor))

	for i, p := range sb.visible {
		sb.list.SetCell(i+1, 0, tview.NewTableCell(" "+p.Username).SetExpansion(1))
	}
}

// Filter returns the filter input for focus handling.
func (sb *Sidebar) Filter() *tview.InputField {
	return sb.filter
}

// List returns the peer table for focus handling.
func (sb *Sidebar) List() *tview.Table {
	return sb.list
}
