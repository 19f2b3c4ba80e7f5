package tui

import (
	"charm.land/bubbles/v2/key"

	"github.com/hylla/tavla/internal/config"
)

// keyMap holds the canvas key bindings. Single-letter actions come from the
// config file; navigation and chrome keys are fixed.
type keyMap struct {
	quit       key.Binding
	toggleHelp key.Binding
	escape     key.Binding

	panLeft  key.Binding
	panRight key.Binding
	panUp    key.Binding
	panDown  key.Binding
	zoomIn   key.Binding
	zoomOut  key.Binding

	undo      key.Binding
	redo      key.Binding
	deleteSel key.Binding
	selectAll key.Binding
	newNote   key.Binding
	newColumn key.Binding
	connect   key.Binding
	lock      key.Binding

	editNote key.Binding
	copyText key.Binding
	front    key.Binding
	back     key.Binding
}

// newKeyMap builds the key map from the rebindable config section.
func newKeyMap(cfg config.KeyConfig) keyMap {
	single := func(k, help string) key.Binding {
		return key.NewBinding(key.WithKeys(k), key.WithHelp(k, help))
	}
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		escape:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),

		// Letters are reserved for the rebindable actions, so panning is
		// arrow-only.
		panLeft:  key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "pan left")),
		panRight: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "pan right")),
		panUp:    key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "pan up")),
		panDown:  key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "pan down")),
		zoomIn:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		zoomOut:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "zoom out")),

		undo:      single(cfg.Undo, "undo"),
		redo:      single(cfg.Redo, "redo"),
		deleteSel: single(cfg.Delete, "delete selection"),
		selectAll: single(cfg.SelectAll, "select all"),
		newNote:   single(cfg.NewNote, "new note"),
		newColumn: single(cfg.NewColumn, "new column"),
		connect:   single(cfg.Connect, "connect from selection"),
		lock:      single(cfg.Lock, "toggle position lock"),

		editNote: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit note")),
		copyText: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy note text")),
		front:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "bring to front")),
		back:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "send to back")),
	}
}

// ShortHelp lists the bindings shown in the one-line help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.newNote, k.newColumn, k.editNote, k.connect, k.undo, k.deleteSel, k.toggleHelp, k.quit,
	}
}

// FullHelp lists every binding grouped by concern.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.newNote, k.newColumn, k.editNote, k.copyText, k.deleteSel, k.selectAll, k.lock},
		{k.panLeft, k.panRight, k.panUp, k.panDown, k.zoomIn, k.zoomOut},
		{k.connect, k.undo, k.redo, k.front, k.back, k.escape, k.toggleHelp, k.quit},
	}
}
