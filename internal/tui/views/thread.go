package views

import (
	"fmt"
	"time"

	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/rivo/tview"
)

// ThreadView displays the message history for the active conversation.
// GIFs render as their title plus URL; the terminal can't show the image.
type ThreadView struct {
	*tview.TextView
	peerName string
}

// NewThreadView creates an empty thread view.
func NewThreadView() *ThreadView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	v := &ThreadView{TextView: tv}
	v.ShowPlaceholder()
	return v
}

// SetPeer updates the title with the active peer's name.
func (v *ThreadView) SetPeer(name string) {
	v.peerName = name
	v.SetTitle(fmt.Sprintf(" %s ", name))
}

// ShowPlaceholder renders the no-conversation state.
func (v *ThreadView) ShowPlaceholder() {
	v.Clear()
	v.SetTitle(" Messages ")
	_, _ = fmt.Fprint(v, "\n  [::d]Pick a friend and start communicating\n  through the universal language of GIFs.[-:-:-]")
}

// Update refreshes the view. Messages arrive oldest first.
func (v *ThreadView) Update(selfID string, msgs []backend.Message) {
	v.Clear()

	if len(msgs) == 0 {
		_, _ = fmt.Fprint(v, "\n  [::d]No memes yet. Break the ice with a GIF![-:-:-]")
		return
	}

	for _, m := range msgs {
		sender := v.peerName
		if m.SenderID == selfID {
			sender = "You"
		}

		marker := ""
		switch m.Status {
		case backend.StatusSending:
			marker = " [::d](sending...)[-:-:-]"
		case backend.StatusFailed:
			marker = " [red](failed)[-]"
		}

		title := m.GifTitle
		if title == "" {
			title = "GIF"
		}

		_, _ = fmt.Fprintf(v, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n  %s\n  [::d]%s[-:-:-]\n\n",
			tview.Escape(sender),
			formatMessageTime(m.CreatedAt),
			marker,
			tview.Escape(title),
			tview.Escape(m.GifURL),
		)
	}

	v.ScrollToEnd()
}

func formatMessageTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.Local()
	now := time.Now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("01/02 15:04")
}
