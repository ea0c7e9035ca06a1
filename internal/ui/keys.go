package ui

import "github.com/charmbracelet/bubbles/key"

var keys = struct {
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
	Upvote   key.Binding
	Downvote key.Binding
	Hide     key.Binding
	Delete   key.Binding
	More     key.Binding
	Reload   key.Binding
	Sort     key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding
	Dismiss  key.Binding
}{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
	Up:       key.NewBinding(key.WithKeys("k", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down")),
	Upvote:   key.NewBinding(key.WithKeys("u")),
	Downvote: key.NewBinding(key.WithKeys("d")),
	Hide:     key.NewBinding(key.WithKeys("h")),
	Delete:   key.NewBinding(key.WithKeys("x")),
	More:     key.NewBinding(key.WithKeys("m")),
	Reload:   key.NewBinding(key.WithKeys("r")),
	Sort:     key.NewBinding(key.WithKeys("s")),
	NextTab:  key.NewBinding(key.WithKeys("tab")),
	PrevTab:  key.NewBinding(key.WithKeys("shift+tab")),
	Dismiss:  key.NewBinding(key.WithKeys("esc")),
}
