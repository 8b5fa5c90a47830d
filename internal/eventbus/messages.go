package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType discriminates the five node events the listener fans in
// (spec.md §4.4/§4.5).
type EventType string

const (
	EventInvoicePaid      EventType = "invoice_paid"
	EventPaySuccess       EventType = "pay_success"
	EventPayFailure       EventType = "pay_failure"
	EventOnchainDeposit   EventType = "onchain_deposit"
	EventOnchainWithdrawal EventType = "onchain_withdrawal"
)

// Envelope is the wire format placed on the stream. Timestamp is optional —
// the node adapter does not always supply one, in which case handlers fall
// back to now() (spec.md §9).
type Envelope struct {
	Type      EventType       `json:"type"`
	Timestamp *int64          `json:"timestamp,omitempty"` // unix seconds
	Payload   json.RawMessage `json:"payload"`
}

func (e *Envelope) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	return data, nil
}

func FromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	if e.Type == "" {
		return nil, errors.New("event type is required")
	}
	return &e, nil
}

// NewEnvelope marshals payload into a stream-ready Envelope. A nil or zero
// timestamp leaves Timestamp unset, so the consumer falls back to now().
func NewEnvelope(eventType EventType, payload any, timestamp *time.Time) (*Envelope, error) {
	raw, err := toRawMessage(payload)
	if err != nil {
		return nil, err
	}
	var ts *int64
	if timestamp != nil && !timestamp.IsZero() {
		unix := timestamp.Unix()
		ts = &unix
	}
	return &Envelope{Type: eventType, Timestamp: ts, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope's raw payload into out.
func (e *Envelope) DecodePayload(out any) error {
	return fromRawMessage(e.Payload, out)
}

// Time converts the envelope's unix-seconds Timestamp back to a time.Time,
// returning nil when the publisher didn't supply one.
func (e *Envelope) Time() *time.Time {
	if e.Timestamp == nil {
		return nil
	}
	t := time.Unix(*e.Timestamp, 0).UTC()
	return &t
}

// toRawMessage/fromRawMessage adapt a typed payload to/from the envelope's
// json.RawMessage field, used by publishers and handlers alike.
func toRawMessage(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return data, nil
}

func fromRawMessage(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal event payload: %w", err)
	}
	return nil
}

// InvoicePaidPayload settles a Lightning invoice by payment hash.
type InvoicePaidPayload struct {
	PaymentHash        string `json:"payment_hash"`
	AmountReceivedMsat int64  `json:"amount_received_msat"`
	FeeMsat            int64  `json:"fee_msat"`
}

func (p *InvoicePaidPayload) Validate() error {
	if p.PaymentHash == "" {
		return errors.New("payment_hash is required")
	}
	if p.AmountReceivedMsat <= 0 {
		return errors.New("amount_received_msat must be greater than 0")
	}
	return nil
}

// PaySuccessPayload settles an outbound Lightning payment by payment hash.
type PaySuccessPayload struct {
	PaymentHash string `json:"payment_hash"`
	Preimage    string `json:"preimage"`
	FeeMsat     int64  `json:"fee_msat"`
}

func (p *PaySuccessPayload) Validate() error {
	if p.PaymentHash == "" {
		return errors.New("payment_hash is required")
	}
	if p.Preimage == "" {
		return errors.New("preimage is required")
	}
	return nil
}

// PayFailurePayload fails an outbound Lightning payment by payment hash.
type PayFailurePayload struct {
	PaymentHash string `json:"payment_hash"`
	Reason      string `json:"reason"`
}

func (p *PayFailurePayload) Validate() error {
	if p.PaymentHash == "" {
		return errors.New("payment_hash is required")
	}
	return nil
}

// OnchainDepositPayload reports a new or re-confirmed UTXO landing on a
// tracked address.
type OnchainDepositPayload struct {
	Outpoint    string `json:"outpoint"`
	Txid        string `json:"txid"`
	OutputIndex int64  `json:"output_index"`
	Address     string `json:"address"`
	AmountSat   int64  `json:"amount_sat"`
	BlockHeight int64  `json:"block_height"`
	Confirmed   bool   `json:"confirmed"`
	Currency    string `json:"currency"`
}

func (p *OnchainDepositPayload) Validate() error {
	if p.Txid == "" {
		return errors.New("txid is required")
	}
	if p.Address == "" {
		return errors.New("address is required")
	}
	if p.AmountSat <= 0 {
		return errors.New("amount_sat must be greater than 0")
	}
	return nil
}

// OnchainWithdrawalPayload reports broadcast/confirmation of an outbound
// on-chain spend, matched back to its payment by txid; BtcOutputID is
// recorded on the matched payment.
type OnchainWithdrawalPayload struct {
	BtcOutputID string `json:"btc_output_id"`
	Txid        string `json:"txid"`
	BlockHeight int64  `json:"block_height"`
}

func (p *OnchainWithdrawalPayload) Validate() error {
	if p.BtcOutputID == "" {
		return errors.New("btc_output_id is required")
	}
	if p.Txid == "" {
		return errors.New("txid is required")
	}
	return nil
}
