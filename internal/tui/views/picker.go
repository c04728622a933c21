package views

import (
	"fmt"

	"github.com/mrodrigues/memegram/internal/giphy"
	"github.com/mrodrigues/memegram/internal/picker"
	"github.com/rivo/tview"
)

// PickerView is the GIF search-and-send panel below the thread.
type PickerView struct {
	*tview.Flex
	input   *tview.InputField
	label   *tview.TextView
	results *tview.Table
	data    []giphy.ImageResult
	onQuery func(string)
	onPick  func(giphy.ImageResult)
}

// NewPickerView creates the picker panel.
func NewPickerView() *PickerView {
	input := tview.NewInputField().
		SetLabel(" Search GIFs: ").
		SetFieldWidth(0).
		SetPlaceholder(`e.g. "excited cat"`)

	label := tview.NewTextView().SetDynamicColors(true)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	results.SetBorder(true).SetTitle(" GIFs ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(label, 1, 0, false).
		AddItem(results, 0, 1, false)

	pv := &PickerView{
		Flex:    flex,
		input:   input,
		label:   label,
		results: results,
	}

	input.SetChangedFunc(func(text string) {
		if pv.onQuery != nil {
			pv.onQuery(text)
		}
	})
	results.SetSelectedFunc(func(row, col int) {
		idx := row - 1
		if idx >= 0 && idx < len(pv.data) && pv.onPick != nil {
			pv.onPick(pv.data[idx])
		}
	})

	return pv
}

// SetOnQueryChanged sets the callback fired on every input change. The
// debounce lives in the searcher, not here.
func (pv *PickerView) SetOnQueryChanged(fn func(string)) {
	pv.onQuery = fn
}

// SetOnPick sets the callback when a GIF is chosen.
func (pv *PickerView) SetOnPick(fn func(giphy.ImageResult)) {
	pv.onPick = fn
}

// Update renders a delivered result set.
func (pv *PickerView) Update(res picker.Results) {
	pv.data = res.Images

	pv.label.Clear()
	if res.Term == "" {
		_, _ = fmt.Fprint(pv.label, " [::d]Trending[-:-:-]")
	} else {
		_, _ = fmt.Fprintf(pv.label, " [::d]Results for %q[-:-:-]", res.Term)
	}

	pv.results.Clear()
	if len(res.Images) == 0 {
		pv.results.SetCell(0, 0, tview.NewTableCell(" No GIFs found").SetSelectable(false))
		return
	}
	pv.results.SetCell(0, 0, tview.NewTableCell(" Title").
		SetSelectable(false).
		SetTextColor(tview.Styles.SecondaryTextColor))
	for i, g := range res.Images {
		title := g.Title
		if title == "" {
			title = g.ID
		}
		pv.results.SetCell(i+1, 0, tview.NewTableCell(" "+title).SetExpansion(1))
	}
}

// Input returns the search input for focus handling.
func (pv *PickerView) Input() *tview.InputField {
	return pv.input
}

// Results returns the result table for focus handling.
func (pv *PickerView) Results() *tview.Table {
	return pv.results
}
