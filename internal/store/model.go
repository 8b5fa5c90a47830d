// Package store holds the persisted entities the transaction engine owns
// (spec.md §3) and the pgx-backed repositories that read and write them.
// The engine is the sole writer of Invoice, Payment, BtcOutput and
// LnAddress; BtcAddress rows are produced here and consumed read-only by
// the node adapter for address matching.
package store

import "time"

// Ledger classifies where a transaction settles.
type Ledger string

const (
	LedgerLightning Ledger = "lightning"
	LedgerOnchain   Ledger = "onchain"
	LedgerInternal  Ledger = "internal"
)

// InvoiceStatus is the persisted (non-derived) invoice state. "Expired" is
// never written — it is derived at query time from expires_at/payment_time
// (spec.md §3 invariants, §9 open question).
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusSettled InvoiceStatus = "settled"
	InvoiceStatusExpired InvoiceStatus = "expired"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSettled PaymentStatus = "settled"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type BtcOutputStatus string

const (
	BtcOutputUnconfirmed BtcOutputStatus = "unconfirmed"
	BtcOutputConfirmed   BtcOutputStatus = "confirmed"
)

type BtcAddressType string

const (
	AddressP2WPKH BtcAddressType = "p2wpkh"
	AddressP2TR   BtcAddressType = "p2tr"
	AddressP2SH   BtcAddressType = "p2sh"
)

// Wallet is the custodial account. Its balance is never stored; it is
// derived by walletsvc (spec.md §4.1).
type Wallet struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// LnAddress is a user@domain Lightning Address (LUD-16), 1:1 with a wallet.
type LnAddress struct {
	ID           string  `db:"id"`
	WalletID     string  `db:"wallet_id"`
	Username     string  `db:"username"`
	Active       bool    `db:"active"`
	NostrPubkey  *string `db:"nostr_pubkey"`
	AllowsNostr  bool    `db:"allows_nostr"`
}

// BtcAddress is an on-chain deposit address owned by a wallet.
type BtcAddress struct {
	ID              string         `db:"id"`
	WalletID        string         `db:"wallet_id"`
	Address         string         `db:"address"`
	AddressType     BtcAddressType `db:"address_type"`
	Used            bool           `db:"used"`
	DerivationIndex *int64         `db:"derivation_index"`
}

// LnInvoice is the BOLT-11 payload embedded in Lightning-ledger invoices.
type LnInvoice struct {
	Bolt11          string  `db:"bolt11"`
	PaymentHash     string  `db:"payment_hash"`
	PayeePubkey     *string `db:"payee_pubkey"`
	DescriptionHash *string `db:"description_hash"`
	PaymentSecret   *string `db:"payment_secret"`
	MinFinalCltv    *int32  `db:"min_final_cltv"`
	ExpiryDuration  int64   `db:"expiry_duration"`
}

// Invoice is an inbound claim against a wallet (spec.md §3).
type Invoice struct {
	ID                  string        `db:"id"`
	WalletID            string        `db:"wallet_id"`
	LnAddressID         *string       `db:"ln_address_id"`
	Ledger              Ledger        `db:"ledger"`
	Currency            string        `db:"currency"`
	AmountMsat          int64         `db:"amount_msat"`
	AmountReceivedMsat  int64         `db:"amount_received_msat"`
	FeeMsat             int64         `db:"fee_msat"`
	Status              InvoiceStatus `db:"status"`
	Description         string        `db:"description"`
	Timestamp           time.Time     `db:"timestamp"`
	PaymentTime         *time.Time    `db:"payment_time"`
	ExpiresAt           time.Time     `db:"expires_at"`
	CreatedAt           time.Time     `db:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at"`
	LnInvoice           *LnInvoice    // embedded when Ledger == LedgerLightning
	BtcOutputID         *string       `db:"btc_output_id"`
}

// DerivedStatus computes the effective status per spec.md §3/§8: Settled iff
// payment_time is set; otherwise Expired iff expires_at has passed; else
// Pending. This is never persisted.
func (i *Invoice) DerivedStatus(now time.Time) InvoiceStatus {
	if i.PaymentTime != nil {
		return InvoiceStatusSettled
	}
	if !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt) {
		return InvoiceStatusExpired
	}
	return InvoiceStatusPending
}

// LightningPayment is the discriminated payload for Ledger == LedgerLightning.
type LightningPayment struct {
	PaymentHash     *string `db:"payment_hash"`
	PaymentPreimage *string `db:"payment_preimage"`
	LnAddress       *string `db:"ln_address"`
	SuccessAction   *SuccessAction
}

// BitcoinPayment is the discriminated payload for Ledger == LedgerOnchain.
type BitcoinPayment struct {
	DestinationAddress string  `db:"destination_address"`
	Txid               *string `db:"txid"`
	BtcOutputID        *string `db:"btc_output_id"`
	BlockHeight         int64   `db:"block_height"`
}

// InternalPayment is the discriminated payload for Ledger == LedgerInternal.
type InternalPayment struct {
	LnAddress   *string `db:"ln_address"`
	BtcAddress  *string `db:"btc_address"`
	PaymentHash *string `db:"counter_payment_hash"`
}

// SuccessAction is the LNURL-pay success action shown to the sender after
// settlement (LUD-09/LUD-10).
type SuccessAction struct {
	Tag         string  `json:"tag"`
	Message     *string `json:"message,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	CiphertextB64 *string `json:"ciphertext,omitempty"`
	IVB64         *string `json:"iv,omitempty"`
}

// Payment is an outbound spend from a wallet (spec.md §3).
type Payment struct {
	ID          string        `db:"id"`
	WalletID    string        `db:"wallet_id"`
	Ledger      Ledger        `db:"ledger"`
	Currency    string        `db:"currency"`
	AmountMsat  int64         `db:"amount_msat"`
	FeeMsat     int64         `db:"fee_msat"`
	Status      PaymentStatus `db:"status"`
	Description string        `db:"description"`
	PaymentTime *time.Time    `db:"payment_time"`
	Error       *string       `db:"error"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`

	Lightning *LightningPayment
	Bitcoin   *BitcoinPayment
	Internal  *InternalPayment
}

// BtcOutput is a tracked on-chain UTXO, upserted by outpoint
// (spec.md §3, §4.4 OnchainDeposit/OnchainWithdrawal).
type BtcOutput struct {
	ID          string          `db:"id"`
	Outpoint    string          `db:"outpoint"` // "{txid}:{vout}"
	Txid        string          `db:"txid"`
	OutputIndex int64           `db:"output_index"`
	Address     string          `db:"address"`
	AmountSat   int64           `db:"amount_sat"`
	Status      BtcOutputStatus `db:"status"`
	BlockHeight int64           `db:"block_height"`
	Network     string          `db:"network"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// ApiKey is referenced only for the authentication collaborator (spec.md
// §3) — this engine creates rows but never validates them.
type ApiKey struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Name       string    `db:"name"`
	Hash       string    `db:"hash"`
	Permissions []string `db:"permissions"`
	ExpiresAt  *time.Time `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// InvoiceFilter narrows List/DeleteMany queries on Invoice.
type InvoiceFilter struct {
	WalletID *string
	Ledger   *Ledger
	IDs      []string
}

// PaymentFilter narrows List/DeleteMany queries on Payment.
type PaymentFilter struct {
	WalletID *string
	Ledger   *Ledger
	IDs      []string
}
