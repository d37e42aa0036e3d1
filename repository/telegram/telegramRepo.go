package telegramrepo

import "context"

// Sink delivers operational notifications. Delivery is best effort:
// a false return must never abort the caller's primary operation.
type Sink interface {
	Send(ctx context.Context, text string) bool
}
