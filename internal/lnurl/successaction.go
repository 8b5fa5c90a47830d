// successaction.go implements the LUD-10 AES success-action decrypt as a
// total, non-failing function, grounded on
// original_source/src/domains/lnurl/utils.rs's process_success_action:
// decryption only runs when the preimage is a valid 32-byte SHA-256
// digest, and any failure is logged and dropped rather than propagated —
// a broken success action must never fail an otherwise-settled payment
// (spec.md §4.3 step 6, §9).
package lnurl

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"wallet-server/internal/lnurlclient"
	"wallet-server/internal/store"
	"wallet-server/pkg/logger"

	"go.uber.org/zap"
)

var (
	errInvalidPreimage     = errors.New("preimage is not a valid 32-byte sha256 digest")
	errMalformedCiphertext = errors.New("malformed aes success action ciphertext")
)

// ResolveSuccessAction converts a raw LUD-09/LUD-10 success action from a
// callback response into the persisted shape, decrypting AES variants in
// place. It never returns an error: on any problem it logs and returns a
// nil success action, or a Message/Url pass-through unchanged.
func ResolveSuccessAction(raw *lnurlclient.SuccessAction, preimageHex string) *store.SuccessAction {
	if raw == nil {
		return nil
	}

	switch raw.Tag {
	case "message":
		return &store.SuccessAction{Tag: raw.Tag, Message: strPtr(raw.Message)}
	case "url":
		return &store.SuccessAction{Tag: raw.Tag, Description: strPtr(raw.Description), URL: strPtr(raw.URL)}
	case "aes":
		plaintext, err := decryptAES(preimageHex, raw.Ciphertext, raw.IV)
		if err != nil {
			logger.Warn("dropping lnurl success action: aes decrypt failed", zap.Error(err))
			return nil
		}
		return &store.SuccessAction{Tag: "message", Message: &plaintext}
	default:
		logger.Warn("dropping lnurl success action: unknown tag", zap.String("tag", raw.Tag))
		return nil
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// decryptAES derives an AES-256-CBC key from sha256(preimage) and
// decrypts the base64 ciphertext/iv pair, removing PKCS7 padding.
func decryptAES(preimageHex, ciphertextB64, ivB64 string) (string, error) {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil || len(preimage) != 32 {
		return "", errInvalidPreimage
	}
	key := sha256.Sum256(preimage)

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", err
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errMalformedCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", errMalformedCiphertext
	}
	return string(plaintext[:len(plaintext)-padLen]), nil
}
