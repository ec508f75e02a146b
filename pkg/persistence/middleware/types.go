package middleware

import "github.com/hirokts/enikki/pkg/ports"

// Middleware allows wrapping a DiaryStore to add behavior.
type Middleware func(ports.DiaryStore) ports.DiaryStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.DiaryStore, mws ...Middleware) ports.DiaryStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
