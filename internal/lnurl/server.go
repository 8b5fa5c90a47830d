// Package lnurl implements the receiving side of LNURL-pay / LUD-06: the
// well-known metadata endpoint and the invoice-minting callback any
// external wallet hits to pay a registered user@domain address
// (spec.md §4.6).
package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/invoicesvc"
	"wallet-server/internal/store"
	"wallet-server/internal/walletsvc"
)

const (
	minSendableMsat = 1000
	maxSendableMsat = 1_000_000_000
	commentAllowed  = 255
)

// PayRequestResponse is the LUD-06 well-known response shape.
type PayRequestResponse struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed"`
	Tag            string `json:"tag"`
}

// CallbackResponse is the LUD-06 callback response shape.
type CallbackResponse struct {
	Bolt11        string              `json:"pr"`
	SuccessAction *store.SuccessAction `json:"successAction,omitempty"`
	Routes        []any               `json:"routes"`
}

type Service struct {
	wallets  *walletsvc.Service
	invoices *invoicesvc.Service
	domain   string
}

func New(wallets *walletsvc.Service, invoices *invoicesvc.Service, domain string) *Service {
	return &Service{wallets: wallets, invoices: invoices, domain: domain}
}

// WellKnown builds the GET /.well-known/lnurlp/{username} response. 404
// (via engineerr.NotFound) if the username is unknown or inactive.
func (s *Service) WellKnown(ctx context.Context, username string) (*PayRequestResponse, error) {
	addr, err := s.wallets.LnAddressByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !addr.Active {
		return nil, engineerr.NewNotFound(fmt.Sprintf("lightning address %q is inactive", username))
	}

	metadata, err := json.Marshal([][2]string{
		{"text/plain", fmt.Sprintf("%s never refuses sats", username)},
		{"text/identifier", fmt.Sprintf("%s@%s", username, s.domain)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lnurlp metadata: %w", err)
	}

	return &PayRequestResponse{
		Callback:       fmt.Sprintf("https://%s/api/lnurlp/%s/callback", s.domain, username),
		MinSendable:    minSendableMsat,
		MaxSendable:    maxSendableMsat,
		Metadata:       string(metadata),
		CommentAllowed: commentAllowed,
		Tag:            "payRequest",
	}, nil
}

// Callback builds the GET /api/lnurlp/{username}/callback response: a
// fresh invoice for the requested amount (spec.md §4.6).
func (s *Service) Callback(ctx context.Context, username string, amountMsat int64, comment string) (*CallbackResponse, error) {
	addr, err := s.wallets.LnAddressByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !addr.Active {
		return nil, engineerr.NewNotFound(fmt.Sprintf("lightning address %q is inactive", username))
	}
	if amountMsat < minSendableMsat || amountMsat > maxSendableMsat {
		return nil, engineerr.NewValidation(fmt.Sprintf("amount_msat %d outside sendable bounds", amountMsat))
	}
	if len(comment) > commentAllowed {
		return nil, engineerr.NewValidation("comment exceeds commentAllowed length")
	}

	description := fmt.Sprintf("Payment to %s@%s", username, s.domain)
	inv, err := s.invoices.Invoice(ctx, addr.WalletID, amountMsat, description, time.Hour)
	if err != nil {
		return nil, err
	}

	return &CallbackResponse{Bolt11: inv.LnInvoice.Bolt11, Routes: []any{}}, nil
}
