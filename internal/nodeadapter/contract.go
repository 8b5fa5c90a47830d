// Package nodeadapter defines the narrow interface the transaction engine
// uses to talk to whichever Lightning node backend is configured
// (spec.md §6, §9 "Backend = Breez | ClnGrpc | ClnRest | Lnd"). Concrete
// backends live in subpackages (lnd, clngrpc, clnrest); the engine only
// ever depends on Client.
package nodeadapter

import (
	"context"
	"time"
)

// Invoice is the node's view of a Lightning invoice, returned by Invoice
// and InvoiceByHash.
type Invoice struct {
	Bolt11          string
	PaymentHash     string
	PayeePubkey     string
	DescriptionHash string
	PaymentSecret   string
	MinFinalCltv    int32
	AmountMsat      int64
	Settled         bool
	AmountPaidMsat  int64
	FeeMsat         int64
	SettledAt       time.Time
	ExpiryDuration  int64
	CreatedAt       time.Time
}

// Payment is the node's view of an outbound Lightning payment, returned by
// Pay and PaymentByHash.
type Payment struct {
	PaymentHash     string
	PaymentPreimage string
	FeeMsat         int64
	Settled         bool
	Failed          bool
	FailureReason   string
	SettledAt       time.Time
}

// HealthStatus reports basic node liveness/sync state.
type HealthStatus struct {
	Synced      bool
	BlockHeight uint32
	Alias       string
	PubKey      string
}

// InvoiceEvent is emitted on SubscribeInvoices whenever a tracked invoice's
// settlement state changes.
type InvoiceEvent struct {
	PaymentHash        string
	AmountReceivedMsat int64
	FeeMsat            int64
	SettledAt          time.Time
}

// PaymentEvent is emitted on SubscribePayments on terminal payment state.
type PaymentEvent struct {
	PaymentHash string
	Preimage    string
	FeeMsat     int64
	Failed      bool
	Reason      string
	SettledAt   time.Time
}

// OnchainEvent is emitted on SubscribeOnchainTx for deposits to or
// confirmations of tracked addresses/outputs.
type OnchainEvent struct {
	Txid        string
	OutputIndex int64
	Address     string
	AmountSat   int64
	BlockHeight int64
}

// Client is the node adapter contract (spec.md §6). Every backend
// implementation must be safe for concurrent use — handles are shared
// across the HTTP server's goroutine-per-request model (spec.md §5).
type Client interface {
	// Invoice asks the node to mint a new BOLT-11. label is the engine's
	// invoice id, used by the node as an opaque correlation tag where
	// supported.
	Invoice(ctx context.Context, amountMsat int64, description, label string, expiry time.Duration, descHashOnly bool) (*Invoice, error)

	// Pay dispatches a BOLT-11 payment. amountMsat overrides a
	// zero-amount invoice's amount; it is ignored otherwise.
	Pay(ctx context.Context, bolt11 string, amountMsat int64, label string) (*Payment, error)

	InvoiceByHash(ctx context.Context, paymentHash string) (*Invoice, error)
	PaymentByHash(ctx context.Context, paymentHash string) (*Payment, error)

	Health(ctx context.Context) (*HealthStatus, error)

	SubscribeInvoices(ctx context.Context) (<-chan InvoiceEvent, error)
	SubscribePayments(ctx context.Context) (<-chan PaymentEvent, error)
	SubscribeOnchainTx(ctx context.Context) (<-chan OnchainEvent, error)

	Close() error
}
