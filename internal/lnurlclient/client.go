// Package lnurlclient performs the outbound half of LNURL-pay (LUD-06):
// decoding a bech32 "lnurl1..." string or a user@domain Lightning Address
// into a well-known URL, fetching the pay-request metadata, and calling
// the callback with a chosen amount. Every outbound GET is throttled by a
// golang.org/x/time/rate limiter so a misbehaving remote LNURL server
// cannot be used to hammer an arbitrary host through this server
// (spec.md §4.3.2 step 2).
package lnurlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wallet-server/internal/engineerr"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/time/rate"
)

// PayRequest is the LUD-06 response from a well-known lnurlp endpoint.
type PayRequest struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed"`
	Tag            string `json:"tag"`
}

// SuccessAction is the raw LUD-09/LUD-10 success action shape returned by
// a callback, before any AES post-processing.
type SuccessAction struct {
	Tag         string `json:"tag"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Ciphertext  string `json:"ciphertext,omitempty"`
	IV          string `json:"iv,omitempty"`
}

// CallbackResponse is the LUD-06 callback response.
type CallbackResponse struct {
	Bolt11        string         `json:"pr"`
	SuccessAction *SuccessAction `json:"successAction,omitempty"`
	Routes        []any          `json:"routes"`
}

// Client is a rate-limited LNURL HTTP client. One instance is shared
// across every payment dispatch, the way the teacher shares its exchange
// provider's *http.Client.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a client allowing ratePerSecond outbound requests with a
// burst of int(ratePerSecond)+1.
func New(ratePerSecond float64) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
	}
}

// DecodeIdentifier turns a bech32 "lnurl1..." string or a foreign
// user@domain Lightning Address into the well-known HTTPS URL to fetch
// (spec.md §4.3.2 "LnUrlPay" classification).
func DecodeIdentifier(input string) (string, error) {
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "lnurl1") {
		hrp, data, err := bech32.Decode(lower, 2000)
		if err != nil {
			return "", engineerr.NewValidation(fmt.Sprintf("invalid lnurl bech32 string: %v", err))
		}
		if hrp != "lnurl" {
			return "", engineerr.NewValidation("invalid lnurl human-readable part")
		}
		decoded, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return "", engineerr.NewValidation(fmt.Sprintf("invalid lnurl payload: %v", err))
		}
		return string(decoded), nil
	}

	if at := strings.IndexByte(input, '@'); at > 0 {
		user, domain := input[:at], input[at+1:]
		if user == "" || domain == "" {
			return "", engineerr.NewValidation("invalid lightning address")
		}
		return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, user), nil
	}

	return "", engineerr.NewValidation("not an lnurl identifier")
}

func (c *Client) do(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("lnurl rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build lnurl request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return engineerr.NewLightning("Connect", "lnurl request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return engineerr.NewLightning("Connect", fmt.Sprintf("lnurl endpoint returned %d: %s", resp.StatusCode, body), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode lnurl response: %w", err)
	}
	return nil
}

// FetchPayRequest performs the GET against the well-known/decoded URL.
func (c *Client) FetchPayRequest(ctx context.Context, url string) (*PayRequest, error) {
	var pr PayRequest
	if err := c.do(ctx, url, &pr); err != nil {
		return nil, err
	}
	if pr.Tag != "payRequest" {
		return nil, engineerr.NewValidation(fmt.Sprintf("lnurl endpoint is not a payRequest (tag=%q)", pr.Tag))
	}
	return &pr, nil
}

// Callback invokes the pay-request callback with the chosen amount and
// optional comment, returning the invoice and any success action.
func (c *Client) Callback(ctx context.Context, callbackURL string, amountMsat int64, comment string) (*CallbackResponse, error) {
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%samount=%s", callbackURL, sep, strconv.FormatInt(amountMsat, 10))
	if comment != "" {
		url += "&comment=" + comment
	}

	var resp CallbackResponse
	if err := c.do(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Bolt11 == "" {
		return nil, engineerr.NewLightning("Invoice", "lnurl callback returned no invoice", nil)
	}
	return &resp, nil
}
