package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"SharedSketch/internal/export"
	"SharedSketch/internal/geom"
	"SharedSketch/internal/session"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"
)

const exportSize = 1024

// App is the desktop window around the board. It is also the session
// observer, so it must be built before the coordinator.
type App struct {
	ctx      context.Context
	fyneApp  fyne.App
	window   fyne.Window
	board    *Board
	camera   *Camera
	dispatch Dispatch
	log      *zap.Logger

	state *widget.Label
	note  *widget.Label

	closed atomic.Bool
}

var _ session.Observer = (*App)(nil)

// NewApp creates the window. Nothing is shown until Run.
func NewApp(ctx context.Context, title string, camera *Camera, lens geom.Lens, dispatch Dispatch, log *zap.Logger) *App {
	a := &App{
		ctx:      ctx,
		fyneApp:  app.NewWithID("io.sharedsketch"),
		camera:   camera,
		dispatch: dispatch,
		log:      log.Named("ui"),
		state:    widget.NewLabel(session.Idle.String()),
		note:     widget.NewLabel(""),
	}
	a.window = a.fyneApp.NewWindow(title)
	a.window.Resize(fyne.NewSize(1024, 768))
	a.board = NewBoard(camera, lens, dispatch)
	return a
}

func (a *App) Board() *Board { return a.board }

// SetNote shows a line of text in the status bar: the share link, the
// host joined, or the outcome of the last action.
func (a *App) SetNote(text string) {
	a.onMain(func() { a.note.SetText(text) })
}

// Run shows the window and blocks until it is closed.
func (a *App) Run() {
	a.window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if a.camera.Key(ev.Name) {
			a.board.Refresh()
		}
	})
	status := container.NewHBox(widget.NewLabel("Session:"), a.state, widget.NewSeparator(), a.note)
	a.window.SetContent(container.NewBorder(NewToolbar(a), status, nil, nil, a.board))
	a.window.ShowAndRun()
	a.closed.Store(true)
	a.board.closed.Store(true)
}

// onMain runs fn on the fyne goroutine unless the window is gone.
func (a *App) onMain(fn func()) {
	if a.closed.Load() {
		return
	}
	fyne.Do(fn)
}

// Quit closes the window from any goroutine.
func (a *App) Quit() {
	a.onMain(a.fyneApp.Quit)
}

func (a *App) SessionChanged(s session.State) {
	a.onMain(func() { a.state.SetText(s.String()) })
}

func (a *App) PeerLost() {
	a.onMain(func() {
		dialog.ShowCustomConfirm("Peer lost", "Restart", "Keep drawing",
			widget.NewLabel("The other device left the session."),
			func(restart bool) {
				if restart {
					a.dispatch(func(c *session.Coordinator) { c.Reset() })
					return
				}
				a.dispatch(func(c *session.Coordinator) {
					if err := c.ContinueSolo(); err != nil {
						a.log.Warn("continue solo", zap.Error(err))
					}
				})
			}, a.window)
	})
}

func (a *App) Invited(peer string) {
	a.onMain(func() {
		dialog.ShowInformation("Shared scene", fmt.Sprintf("%s shared their scene. Look around until tracking settles.", peer), a.window)
	})
}

func (a *App) Error(err error) {
	a.log.Warn("session error", zap.Error(err))
	a.onMain(func() { dialog.ShowError(err, a.window) })
}

// do runs an action that may be refused on the session goroutine and
// reports the refusal.
func (a *App) do(fn func(c *session.Coordinator) error) {
	a.dispatch(func(c *session.Coordinator) {
		if err := fn(c); err != nil {
			if errors.Is(err, session.ErrCollaborating) {
				a.SetNote("Not available while collaborating")
				return
			}
			a.Error(err)
		}
	})
}

func (a *App) share() {
	a.do(func(c *session.Coordinator) error { return c.Share(a.ctx) })
}

// exportSketch asks for a file and writes a PDF, or a PNG when the name
// ends in .png.
func (a *App) exportSketch() {
	dialog.ShowFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			a.Error(err)
			return
		}
		if w == nil {
			return
		}
		a.dispatch(func(c *session.Coordinator) {
			sk := export.FromStrokes(c.Manager().All())
			go a.writeExport(w, sk)
		})
	}, a.window)
}

func (a *App) writeExport(w fyne.URIWriteCloser, sk export.Sketch) {
	var err error
	if strings.EqualFold(w.URI().Extension(), ".png") {
		err = export.WritePNG(w, sk, exportSize, exportSize)
	} else {
		err = export.WritePDF(w, sk)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.Error(err)
		return
	}
	a.log.Info("exported", zap.String("uri", w.URI().String()), zap.Int("strokes", len(sk.Shapes)))
	a.SetNote("Saved " + w.URI().Name())
}
