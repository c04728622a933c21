package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent session/feed status.
type StatusBar struct {
	*tview.TextView
	user  string
	state string
	live  bool
	flash string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetUser updates the signed-in username display.
func (sb *StatusBar) SetUser(name string) {
	sb.user = name
	sb.render()
}

// SetState updates the thread state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetLive updates the feed indicator.
func (sb *StatusBar) SetLive(live bool) {
	sb.live = live
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	feedIcon := " "
	if sb.live {
		feedIcon = "[green]~[-]"
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s %s | %s", sb.user, sb.state, feedIcon, clock)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
