package ports

import (
	"context"

	"github.com/hirokts/enikki/pkg/domain"
)

// Notifier delivers the completion notice of a run to target.
type Notifier interface {
	Notify(ctx context.Context, target string, n domain.Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, target string, n domain.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, target string, n domain.Notification) error {
	return f(ctx, target, n)
}
