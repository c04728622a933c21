package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/mrodrigues/memegram/internal/bus"
	"github.com/mrodrigues/memegram/internal/directory"
	"github.com/mrodrigues/memegram/internal/giphy"
	"github.com/mrodrigues/memegram/internal/picker"
	"github.com/mrodrigues/memegram/internal/session"
	"github.com/mrodrigues/memegram/internal/thread"
	"github.com/mrodrigues/memegram/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// App is the main TUI application shell: a single view swap between the
// auth form and the chat layout (sidebar + thread + picker).
type App struct {
	app          *tview.Application
	pages        *tview.Pages
	holder       *session.Holder
	dir          *directory.Directory
	synchronizer *thread.Synchronizer
	searcher     *picker.Searcher
	logger       *zap.Logger
	flash        Flash

	authV     *views.AuthView
	sidebar   *views.Sidebar
	threadV   *views.ThreadView
	pickerV   *views.PickerView
	statusBar *views.StatusBar

	events      <-chan bus.Event
	unsubEvents func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(holder *session.Holder, dir *directory.Directory, synchronizer *thread.Synchronizer, catalog picker.Catalog, b *bus.Bus, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:          tview.NewApplication(),
		pages:        tview.NewPages(),
		holder:       holder,
		dir:          dir,
		synchronizer: synchronizer,
		logger:       logger,
		authV:        views.NewAuthView(),
		sidebar:      views.NewSidebar(),
		threadV:      views.NewThreadView(),
		pickerV:      views.NewPickerView(),
		statusBar:    views.NewStatusBar(),
		ctx:          ctx,
		cancel:       cancel,
	}

	// Subscribe at construction time: session recovery runs before the UI
	// loop starts, and its signed-in event must wait in the buffer rather
	// than vanish with no subscriber.
	a.events, a.unsubEvents = b.Subscribe("", 128)

	a.searcher = picker.NewSearcher(ctx, catalog, logger, func(res picker.Results) {
		a.app.QueueUpdateDraw(func() {
			a.pickerV.Update(res)
		})
	})

	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.authV.SetOnSubmit(func(mode, email, password, username string) {
		a.authV.ClearError()
		go func() {
			var err error
			if mode == views.ModeSignup {
				err = a.holder.SignUp(a.ctx, email, password, username)
			} else {
				err = a.holder.SignIn(a.ctx, email, password)
			}
			if err != nil {
				a.app.QueueUpdateDraw(func() {
					a.authV.ShowError(err.Error())
				})
			}
		}()
	})

	a.sidebar.SetOnSelect(func(p backend.Profile) {
		a.threadV.SetPeer(p.Username)
		a.synchronizer.SelectPeer(a.ctx, p)
		a.searcher.LoadTrending()
	})

	a.pickerV.SetOnQueryChanged(func(text string) {
		a.searcher.SetQuery(text)
	})

	a.pickerV.SetOnPick(func(g giphy.ImageResult) {
		if err := a.synchronizer.SendImage(a.ctx, thread.Image{URL: g.URL, Title: g.Title}); err != nil {
			a.flash.Set(err.Error(), 5*time.Second)
			a.statusBar.SetFlash(a.flash.Get())
		}
	})
}

func (a *App) setupLayout() {
	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.threadV, 0, 1, false).
		AddItem(a.pickerV, 14, 0, false)

	main := tview.NewFlex().
		AddItem(a.sidebar, 32, 0, true).
		AddItem(right, 0, 1, false)

	a.pages.AddPage("auth", a.authV, true, true)
	a.pages.AddPage("main", main, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()
		if currentPage != "main" {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.sidebar.List())
			return nil
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case '/':
				a.app.SetFocus(a.sidebar.Filter())
				return nil
			case 'g':
				a.app.SetFocus(a.pickerV.Input())
				return nil
			case 'G':
				a.app.SetFocus(a.pickerV.Results())
				return nil
			case 'o':
				go a.holder.SignOut(a.ctx)
				return nil
			}
		}

		return event
	})
}

// Run starts the TUI. The view swap between auth and main is driven
// entirely by session events on the bus; events published before Run,
// such as a startup session recovery, are replayed from the buffer.
func (a *App) Run() error {
	go a.eventLoop()
	return a.app.Run()
}

func (a *App) eventLoop() {
	for {
		select {
		case evt := <-a.events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSessionSignedIn:
		profile, ok := evt.Payload.(backend.Profile)
		if !ok {
			return
		}
		a.synchronizer.Bind(profile, a.holder.AccessToken())
		go func() {
			if err := a.dir.Load(a.ctx, a.holder.AccessToken(), profile.ID); err != nil {
				a.flash.Set("Could not load friends", 5*time.Second)
			}
			a.app.QueueUpdateDraw(func() {
				a.sidebar.SetCurrentUser(profile)
				a.sidebar.Update(a.dir.Peers())
				a.statusBar.SetUser(profile.Username)
				a.statusBar.SetFlash(a.flash.Get())
				a.pages.SwitchToPage("main")
				a.app.SetFocus(a.sidebar.List())
			})
		}()

	case bus.KindSessionSignedOut:
		a.synchronizer.Reset()
		a.dir.Clear()
		a.app.QueueUpdateDraw(func() {
			a.sidebar.Update(nil)
			a.threadV.ShowPlaceholder()
			a.statusBar.SetUser("")
			a.pages.SwitchToPage("auth")
		})

	case bus.KindThreadUpdated:
		a.app.QueueUpdateDraw(func() {
			self, ok := a.holder.Current()
			if !ok {
				return
			}
			a.threadV.Update(self.ID, a.synchronizer.Messages())
			a.statusBar.SetState(string(a.synchronizer.State()))
		})

	case bus.KindThreadState:
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(string(a.synchronizer.State()))
		})

	case bus.KindFeedConnected:
		a.app.QueueUpdateDraw(func() { a.statusBar.SetLive(true) })

	case bus.KindFeedDropped:
		a.app.QueueUpdateDraw(func() { a.statusBar.SetLive(false) })
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.unsubEvents()
	a.searcher.Close()
	a.app.Stop()
}
