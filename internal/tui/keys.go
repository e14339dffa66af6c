package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds every binding of the exam screen.
type KeyMap struct {
	Next            key.Binding
	Previous        key.Binding
	OptionUp        key.Binding
	OptionDown      key.Binding
	Choose          key.Binding
	Review          key.Binding
	First           key.Binding
	Last            key.Binding
	FirstUnanswered key.Binding
	Submit          key.Binding
	Confirm         key.Binding
	Cancel          key.Binding
	Help            key.Binding
	Quit            key.Binding
}

// DefaultKeyMap returns the bindings used by the exam client.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("right", "l", "n"),
			key.WithHelp("→/n", "next"),
		),
		Previous: key.NewBinding(
			key.WithKeys("left", "h", "p"),
			key.WithHelp("←/p", "previous"),
		),
		OptionUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "option up"),
		),
		OptionDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "option down"),
		),
		Choose: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "select"),
		),
		Review: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mark for review"),
		),
		First: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "first question"),
		),
		Last: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "last question"),
		),
		FirstUnanswered: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "first unanswered"),
		),
		Submit: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "submit test"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "n"),
			key.WithHelp("esc", "close"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// ShortHelp is the footer line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Previous, k.Next, k.Choose, k.Review, k.Submit, k.Help}
}

// FullHelp groups every binding.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Previous, k.Next, k.First, k.Last, k.FirstUnanswered},
		{k.OptionUp, k.OptionDown, k.Choose, k.Review},
		{k.Submit, k.Confirm, k.Cancel, k.Quit},
	}
}
