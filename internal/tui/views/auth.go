package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// Auth form modes.
const (
	ModeLogin  = "login"
	ModeSignup = "signup"
)

// AuthView is the sign-in / sign-up form shown while unauthenticated.
type AuthView struct {
	*tview.Flex
	form     *tview.Form
	errText  *tview.TextView
	mode     string
	onSubmit func(mode, email, password, username string)
}

// NewAuthView creates the auth view in login mode.
func NewAuthView() *AuthView {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" memegram ")

	errText := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	inner := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(errText, 1, 0, false)

	// Center the form.
	flex := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(inner, 14, 0, true).
			AddItem(nil, 0, 1, false), 48, 0, true).
		AddItem(nil, 0, 1, false)

	av := &AuthView{
		Flex:    flex,
		form:    form,
		errText: errText,
		mode:    ModeLogin,
	}
	av.rebuild()
	return av
}

// SetOnSubmit sets the callback invoked with the form contents.
func (av *AuthView) SetOnSubmit(fn func(mode, email, password, username string)) {
	av.onSubmit = fn
}

// ShowError displays an auth error verbatim.
func (av *AuthView) ShowError(msg string) {
	av.errText.Clear()
	_, _ = fmt.Fprintf(av.errText, "[red]%s[-]", tview.Escape(msg))
}

// ClearError clears the error line.
func (av *AuthView) ClearError() {
	av.errText.Clear()
}

func (av *AuthView) rebuild() {
	av.form.Clear(true)

	if av.mode == ModeSignup {
		av.form.AddInputField("Username", "", 0, nil, nil)
	}
	av.form.AddInputField("Email", "", 0, nil, nil)
	av.form.AddPasswordField("Password", "", 0, '*', nil)

	submitLabel := "Login"
	toggleLabel := "Need an account? Sign up"
	if av.mode == ModeSignup {
		submitLabel = "Sign up"
		toggleLabel = "Have an account? Login"
	}

	av.form.AddButton(submitLabel, func() {
		if av.onSubmit == nil {
			return
		}
		username := ""
		if av.mode == ModeSignup {
			username = av.fieldText("Username")
		}
		av.onSubmit(av.mode, av.fieldText("Email"), av.fieldText("Password"), username)
	})
	av.form.AddButton(toggleLabel, func() {
		if av.mode == ModeLogin {
			av.mode = ModeSignup
		} else {
			av.mode = ModeLogin
		}
		av.ClearError()
		av.rebuild()
	})
}

func (av *AuthView) fieldText(label string) string {
	item := av.form.GetFormItemByLabel(label)
	if item == nil {
		return ""
	}
	field, ok := item.(*tview.InputField)
	if !ok {
		return ""
	}
	return field.GetText()
}
