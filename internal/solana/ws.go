package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// AccountSubscribe subscribes to data changes of an account.
	AccountSubscribe(ctx context.Context, account string) (*AccountSubscription, error)

	// Unsubscribe cancels a subscription and closes its channel.
	Unsubscribe(sub *AccountSubscription) error

	// Close closes the WebSocket connection.
	Close() error
}

// AccountSubscription is an active accountSubscribe stream.
// C is closed on Unsubscribe or Close.
type AccountSubscription struct {
	Account string
	C       <-chan AccountNotification

	key uint64 // client-local key, stable across reconnects
}

// AccountNotification represents an accountNotification message.
type AccountNotification struct {
	Account  string
	Slot     int64
	Lamports uint64
	Owner    string
	Data     string // base64 encoded
}
