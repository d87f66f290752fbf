package service

import "clipboard-history/pkg/types"

// ItemAddedHandler is implemented by components that need to be notified of newly stored items
type ItemAddedHandler interface {
	HandleItemAdded(item *types.Item)
}

// HandlerFunc adapts a plain function to ItemAddedHandler
type HandlerFunc func(item *types.Item)

func (f HandlerFunc) HandleItemAdded(item *types.Item) {
	f(item)
}
