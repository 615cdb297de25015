package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard keybindings.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	New    key.Binding
	Edit   key.Binding
	Toggle key.Binding
	Delete key.Binding
	Search key.Binding
	Filter key.Binding
	Dark   key.Binding
	Reload key.Binding
	Logout key.Binding
	Back   key.Binding
	Quit   key.Binding

	// Auth screens
	SwitchScreen key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		New:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Edit:   key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e", "edit")),
		Toggle: key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "done/undo")),
		Delete: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Search: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Filter: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "priority")),
		Dark:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "theme")),
		Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Logout: key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log out")),
		Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		SwitchScreen: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "login/register")),
	}
}

// ShortHelp lists the bindings shown in the dashboard footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.New, k.Edit, k.Toggle, k.Delete, k.Search, k.Filter, k.Dark, k.Logout, k.Quit}
}

// FullHelp satisfies help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.New, k.Edit, k.Toggle, k.Delete},
		{k.Search, k.Filter, k.Dark, k.Reload, k.Logout, k.Quit},
	}
}
