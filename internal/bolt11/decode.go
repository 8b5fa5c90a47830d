// Package bolt11 decodes and validates Lightning invoices using lnd's
// zpay32 codec — the engine only ever consumes bolt11 strings produced
// by the node adapter or supplied by a payer, it never constructs them.
package bolt11

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/store"
)

// Decoded is the subset of a BOLT-11 invoice the engine persists and
// validates against (spec.md §3 LnInvoice, §4.3 Pay classification).
type Decoded struct {
	PaymentHash     string
	PayeePubkey     *string
	DescriptionHash *string
	PaymentSecret   *string
	MinFinalCltv    *int32
	AmountMsat      *int64 // nil when the invoice carries no amount
	ExpiryDuration  int64  // seconds
	Timestamp       time.Time
}

// Decode parses and validates a bolt11 string against the given network,
// returning engineerr.Validation on malformed input.
func Decode(raw string, net *chaincfg.Params) (*Decoded, error) {
	inv, err := zpay32.Decode(raw, net)
	if err != nil {
		return nil, engineerr.NewValidation(fmt.Sprintf("invalid bolt11 invoice: %v", err))
	}

	d := &Decoded{
		PaymentHash:    fmt.Sprintf("%x", inv.PaymentHash[:]),
		Timestamp:      inv.Timestamp,
		ExpiryDuration: int64(inv.Expiry().Seconds()),
	}

	if inv.MilliSat != nil {
		amt := int64(*inv.MilliSat)
		d.AmountMsat = &amt
	}
	if inv.Destination != nil {
		pk := fmt.Sprintf("%x", inv.Destination.SerializeCompressed())
		d.PayeePubkey = &pk
	}
	if inv.DescriptionHash != nil {
		dh := fmt.Sprintf("%x", inv.DescriptionHash[:])
		d.DescriptionHash = &dh
	}
	if inv.PaymentAddr != nil {
		pa := fmt.Sprintf("%x", inv.PaymentAddr[:])
		d.PaymentSecret = &pa
	}
	if inv.MinFinalCLTVExpiry() > 0 {
		cltv := int32(inv.MinFinalCLTVExpiry())
		d.MinFinalCltv = &cltv
	}

	return d, nil
}

// IsExpired reports whether the invoice's own expiry window has elapsed
// relative to its embedded timestamp, independent of the engine's
// persisted expires_at (used only at classification time, before a row
// exists).
func (d *Decoded) IsExpired(now time.Time) bool {
	return now.After(d.Timestamp.Add(time.Duration(d.ExpiryDuration) * time.Second))
}

// ToLnInvoice projects the decoded fields onto the persisted model shape.
func (d *Decoded) ToLnInvoice(raw string) *store.LnInvoice {
	return &store.LnInvoice{
		Bolt11:          raw,
		PaymentHash:     d.PaymentHash,
		PayeePubkey:     d.PayeePubkey,
		DescriptionHash: d.DescriptionHash,
		PaymentSecret:   d.PaymentSecret,
		MinFinalCltv:    d.MinFinalCltv,
		ExpiryDuration:  d.ExpiryDuration,
	}
}
