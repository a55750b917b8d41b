package service

import "context"

// Notifier delivers live updates to a session owner. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ownerID, eventType string, payload any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, any) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
