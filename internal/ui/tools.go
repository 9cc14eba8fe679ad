package ui

import (
	"image/color"

	"SharedSketch/internal/edit"
	"SharedSketch/internal/session"
	"SharedSketch/internal/state"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// --- Custom Widget for Color Swatches ---
type colorSwatch struct {
	widget.BaseWidget
	Color    state.Color
	OnTapped func(state.Color)
}

func newColorSwatch(c state.Color, tapped func(state.Color)) *colorSwatch {
	s := &colorSwatch{Color: c, OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := canvas.NewRectangle(s.Color)
	rect.SetMinSize(fyne.NewSize(32, 32))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.Color)
	}
}

var palette = []state.Color{state.Pink, state.Black, state.Red, state.Green, state.Blue, state.Yellow}

var widthClasses = []state.WidthClass{state.Small, state.Medium, state.Large}

// --- The Main Toolbar ---
func NewToolbar(a *App) fyne.CanvasObject {
	selectTool := func(t edit.Tool) func() {
		return func() {
			a.do(func(c *session.Coordinator) error { return c.SelectTool(t) })
		}
	}
	tools := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentCreateIcon(), selectTool(edit.ToolPencil)),
		widget.NewToolbarAction(theme.ColorChromaticIcon(), selectTool(edit.ToolMarker)),
		widget.NewToolbarAction(theme.ContentClearIcon(), selectTool(edit.ToolEraser)),
		widget.NewToolbarAction(theme.ViewFullScreenIcon(), selectTool(edit.ToolMover)),
	)

	history := widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentUndoIcon(), func() {
			a.do(func(c *session.Coordinator) error { return c.Undo() })
		}),
		widget.NewToolbarAction(theme.ContentRedoIcon(), func() {
			a.do(func(c *session.Coordinator) error { return c.Redo() })
		}),
		widget.NewToolbarAction(theme.DeleteIcon(), func() {
			a.dispatch(func(c *session.Coordinator) { c.DeleteAll() })
		}),
	)

	sessionBar := widget.NewToolbar(
		widget.NewToolbarAction(theme.MailSendIcon(), a.share),
		widget.NewToolbarAction(theme.ViewRefreshIcon(), func() {
			a.dispatch(func(c *session.Coordinator) { c.Reset() })
		}),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), a.exportSketch),
	)

	// --- Color Palette ---
	onColorTapped := func(col state.Color) {
		a.dispatch(func(c *session.Coordinator) { c.SetColor(col) })
	}
	colorBox := container.NewHBox()
	for _, col := range palette {
		colorBox.Add(newColorSwatch(col, onColorTapped))
	}

	// --- Stroke Width ---
	names := make([]string, len(widthClasses))
	for i, w := range widthClasses {
		names[i] = w.String()
	}
	widthSelect := widget.NewSelect(names, func(name string) {
		for _, w := range widthClasses {
			if w.String() == name {
				a.dispatch(func(c *session.Coordinator) { c.SetWidthClass(w) })
			}
		}
	})
	widthSelect.SetSelected(state.Small.String())

	// --- Assemble everything ---
	return container.NewHBox(
		widget.NewLabel("Tool:"),
		tools,
		widget.NewSeparator(),
		widget.NewLabel("Color:"),
		colorBox,
		widget.NewSeparator(),
		widget.NewLabel("Size:"),
		widthSelect,
		widget.NewSeparator(),
		history,
		layout.NewSpacer(),
		sessionBar,
	)
}
