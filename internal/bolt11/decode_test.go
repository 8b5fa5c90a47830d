package bolt11

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
)

func TestDecode_InvalidInvoiceReturnsValidationError(t *testing.T) {
	_, err := Decode("not-a-real-invoice", &chaincfg.RegressionNetParams)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bolt11 invoice")
}

func TestDecode_EmptyString(t *testing.T) {
	_, err := Decode("", &chaincfg.MainNetParams)
	assert.Error(t, err)
}
