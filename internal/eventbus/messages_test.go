package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	payload := &InvoicePaidPayload{PaymentHash: "abc", AmountReceivedMsat: 1000, FeeMsat: 0}
	raw, err := toRawMessage(payload)
	require.NoError(t, err)

	ts := int64(1700000000)
	original := &Envelope{Type: EventInvoicePaid, Timestamp: &ts, Payload: raw}

	data, err := original.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, EventInvoicePaid, decoded.Type)
	require.NotNil(t, decoded.Timestamp)
	assert.Equal(t, ts, *decoded.Timestamp)

	var gotPayload InvoicePaidPayload
	require.NoError(t, fromRawMessage(decoded.Payload, &gotPayload))
	assert.Equal(t, *payload, gotPayload)
}

func TestFromJSON_MissingType(t *testing.T) {
	env, err := FromJSON([]byte(`{"payload": {}}`))
	assert.Error(t, err)
	assert.Nil(t, env)
	assert.Contains(t, err.Error(), "event type is required")
}

func TestFromJSON_InvalidJSON(t *testing.T) {
	env, err := FromJSON([]byte(`not json`))
	assert.Error(t, err)
	assert.Nil(t, env)
}

func TestInvoicePaidPayload_Validate(t *testing.T) {
	tests := []struct {
		name      string
		payload   InvoicePaidPayload
		wantError string
	}{
		{"valid", InvoicePaidPayload{PaymentHash: "abc", AmountReceivedMsat: 1000}, ""},
		{"missing hash", InvoicePaidPayload{AmountReceivedMsat: 1000}, "payment_hash is required"},
		{"zero amount", InvoicePaidPayload{PaymentHash: "abc", AmountReceivedMsat: 0}, "amount_received_msat must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantError)
			}
		})
	}
}

func TestPaySuccessPayload_Validate(t *testing.T) {
	tests := []struct {
		name      string
		payload   PaySuccessPayload
		wantError string
	}{
		{"valid", PaySuccessPayload{PaymentHash: "abc", Preimage: "feed"}, ""},
		{"missing preimage", PaySuccessPayload{PaymentHash: "abc"}, "preimage is required"},
		{"missing hash", PaySuccessPayload{Preimage: "feed"}, "payment_hash is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantError)
			}
		})
	}
}

func TestOnchainDepositPayload_Validate(t *testing.T) {
	tests := []struct {
		name      string
		payload   OnchainDepositPayload
		wantError string
	}{
		{"valid", OnchainDepositPayload{Txid: "t", Address: "a", AmountSat: 1}, ""},
		{"missing txid", OnchainDepositPayload{Address: "a", AmountSat: 1}, "txid is required"},
		{"zero amount", OnchainDepositPayload{Txid: "t", Address: "a", AmountSat: 0}, "amount_sat must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantError)
			}
		})
	}
}

func TestOnchainWithdrawalPayload_Validate(t *testing.T) {
	tests := []struct {
		name      string
		payload   OnchainWithdrawalPayload
		wantError string
	}{
		{"valid", OnchainWithdrawalPayload{BtcOutputID: "o", Txid: "t"}, ""},
		{"missing output id", OnchainWithdrawalPayload{Txid: "t"}, "btc_output_id is required"},
		{"missing txid", OnchainWithdrawalPayload{BtcOutputID: "o"}, "txid is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantError)
			}
		})
	}
}
