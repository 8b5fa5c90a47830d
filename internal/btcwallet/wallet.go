// Package btcwallet implements the on-chain half of the node adapter
// contract: deriving deposit addresses from a single treasury seed,
// and preparing/signing/broadcasting withdrawal transactions with a
// coin-selection and leasing discipline adapted from the teacher's
// Blockstream-backed wallet.
package btcwallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"wallet-server/internal/cache"
	"wallet-server/internal/engineerr"
	"wallet-server/pkg/logger"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
)

// AddressType mirrors store.BtcAddressType without importing the store
// package, keeping this adapter storage-agnostic.
type AddressType string

const (
	P2WPKH AddressType = "p2wpkh"
)

// UTXO is a confirmed-or-unconfirmed unspent output as reported by the
// block explorer backend.
type UTXO struct {
	TxHash      string
	Vout        uint32
	Value       int64
	Confirmed   bool
	BlockHeight int
}

// PreparedTransaction is a coin-selected, unsigned transaction held under
// a lease so concurrent payment attempts cannot double-spend the same
// inputs (spec.md §4.3/§6 UTXO lease hygiene: exactly one of
// SignSendTransaction/ReleasePreparedTransaction must follow Prepare).
type PreparedTransaction struct {
	ID          string
	Tx          *wire.MsgTx
	UTXOs       []UTXO
	LeaseToken  string
	AmountSat   int64
	ChangeSat   int64
	DestAddress string
}

// Wallet is the treasury signer: one HD root key derives every deposit
// address by index, and signs every outbound spend.
type Wallet struct {
	network    string
	params     *chaincfg.Params
	rootKey    *hdkeychain.ExtendedKey
	httpClient *http.Client

	mu       sync.Mutex
	prepared map[string]*PreparedTransaction
}

func networkParams(network string) *chaincfg.Params {
	if network == "mainnet" {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}

// NewWallet derives the treasury root key from a BIP-32 seed. The seed is
// the engine's single point of private-key custody (spec.md Non-goals:
// no other private-key handling).
func NewWallet(seed []byte, network string) (*Wallet, error) {
	if network != "mainnet" && network != "testnet" {
		return nil, errors.New("invalid network: must be 'mainnet' or 'testnet'")
	}
	params := networkParams(network)

	root, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive treasury root key: %w", err)
	}

	return &Wallet{
		network:    network,
		params:     params,
		rootKey:    root,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		prepared:   make(map[string]*PreparedTransaction),
	}, nil
}

func (w *Wallet) Network() string { return w.network }

// NewAddress derives the deposit address at the given index via a plain
// non-hardened BIP-32 child path (m/index) and returns its P2WPKH
// encoding; the caller keeps track of the index it passed in.
func (w *Wallet) NewAddress(ctx context.Context, addressType AddressType, index uint32) (string, error) {
	if addressType != P2WPKH {
		return "", engineerr.NewValidation(fmt.Sprintf("unsupported address type %q", addressType))
	}

	child, err := w.rootKey.Derive(index)
	if err != nil {
		return "", fmt.Errorf("failed to derive child key at index %d: %w", index, err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to derive public key at index %d: %w", index, err)
	}

	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, w.params)
	if err != nil {
		return "", fmt.Errorf("failed to build witness address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// privKeyForIndex recovers the signing key for a derived address, used
// only at sign time so the key never sits decrypted longer than needed.
func (w *Wallet) privKeyForIndex(index uint32) (*btcutil.WIF, error) {
	child, err := w.rootKey.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive child key at index %d: %w", index, err)
	}
	privKey, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key at index %d: %w", index, err)
	}
	return btcutil.NewWIF(privKey, w.params, true)
}

func (w *Wallet) ValidateAddress(address string) bool {
	addr, err := btcutil.DecodeAddress(address, w.params)
	if err != nil {
		return false
	}
	return addr.IsForNet(w.params)
}

func (w *Wallet) blockstreamBase() string {
	if w.network == "mainnet" {
		return "https://blockstream.info/api"
	}
	return "https://blockstream.info/testnet/api"
}

type esploraUTXO struct {
	TxHash string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool `json:"confirmed"`
		BlockHeight int  `json:"block_height"`
	} `json:"status"`
}

// fetchUTXOs queries the chain backend for the address's unspent outputs.
func (w *Wallet) fetchUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.blockstreamBase()+"/address/"+address+"/utxo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build utxo request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch utxos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain backend returned status %d", resp.StatusCode)
	}

	var raw []esploraUTXO
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse utxo response: %w", err)
	}

	utxos := make([]UTXO, len(raw))
	for i, u := range raw {
		utxos[i] = UTXO{
			TxHash:      u.TxHash,
			Vout:        u.Vout,
			Value:       u.Value,
			Confirmed:   u.Status.Confirmed,
			BlockHeight: u.Status.BlockHeight,
		}
	}
	return utxos, nil
}

// selectCoins performs progressive coin selection, matching the teacher's
// fee-estimation shape (68 bytes/input, 31 bytes/output, 11 bytes overhead).
func selectCoins(utxos []UTXO, amountSat int64, feeRateSatPerByte int64) ([]UTXO, int64, int64, error) {
	var selected []UTXO
	var totalInput int64
	const numOutputs = 2

	for _, u := range utxos {
		if !u.Confirmed {
			continue
		}
		selected = append(selected, u)
		totalInput += u.Value

		txSize := int64((len(selected) * 68) + (numOutputs * 31) + 11)
		fee := txSize * feeRateSatPerByte
		needed := amountSat + fee

		if totalInput >= needed {
			change := totalInput - needed
			if change < 546 {
				change = 0
			}
			return selected, totalInput, change, nil
		}
	}

	txSize := int64((len(selected) * 68) + (numOutputs * 31) + 11)
	return nil, 0, 0, engineerr.NewInsufficientFunds((amountSat + txSize*feeRateSatPerByte) * 1000)
}

// PrepareTransaction selects coins, builds an unsigned transaction and
// leases the inputs under a Redis lock, returning a handle that must be
// resolved by exactly one of SignSendTransaction or
// ReleasePreparedTransaction.
func (w *Wallet) PrepareTransaction(ctx context.Context, fromAddress, toAddress string, amountSat, feeRateSatPerByte int64) (*PreparedTransaction, error) {
	if !w.ValidateAddress(toAddress) {
		return nil, engineerr.NewValidation("invalid destination address")
	}
	if amountSat <= 0 {
		return nil, engineerr.NewValidation("amount must be greater than 0")
	}

	utxos, err := w.fetchUTXOs(ctx, fromAddress)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Bitcoin, "failed to fetch utxos", err)
	}

	selected, _, change, err := selectCoins(utxos, amountSat, feeRateSatPerByte)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range selected {
		hash, err := chainhash.NewHashFromStr(u.TxHash)
		if err != nil {
			return nil, engineerr.NewValidation(fmt.Sprintf("invalid utxo txid %q", u.TxHash))
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
	}

	toAddr, err := btcutil.DecodeAddress(toAddress, w.params)
	if err != nil {
		return nil, engineerr.NewValidation("failed to decode destination address")
	}
	pkScript, err := txscript.PayToAddrScript(toAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to build output script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(amountSat, pkScript))

	if change > 0 {
		changeAddr, err := btcutil.DecodeAddress(fromAddress, w.params)
		if err != nil {
			return nil, engineerr.NewValidation("failed to decode change address")
		}
		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to build change script: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	prepID := tx.TxHash().String()
	leaseToken := hex.EncodeToString(tx.TxHash()[:8])

	for _, u := range selected {
		lockKey := fmt.Sprintf("utxo-lease:%s:%d", u.TxHash, u.Vout)
		acquired, err := cache.SetNX(ctx, lockKey, leaseToken, 10*time.Minute)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.Bitcoin, "failed to lease utxo", err)
		}
		if !acquired {
			return nil, engineerr.NewConflict(fmt.Sprintf("utxo %s:%d already leased", u.TxHash, u.Vout))
		}
	}

	prepared := &PreparedTransaction{
		ID:          prepID,
		Tx:          tx,
		UTXOs:       selected,
		LeaseToken:  leaseToken,
		AmountSat:   amountSat,
		ChangeSat:   change,
		DestAddress: toAddress,
	}

	w.mu.Lock()
	w.prepared[prepID] = prepared
	w.mu.Unlock()

	return prepared, nil
}

// ReleasePreparedTransaction releases the UTXO leases without broadcasting,
// used when a payment attempt is abandoned (spec.md §4.3 UTXO lease hygiene).
func (w *Wallet) ReleasePreparedTransaction(ctx context.Context, prepID string) error {
	w.mu.Lock()
	prepared, ok := w.prepared[prepID]
	if ok {
		delete(w.prepared, prepID)
	}
	w.mu.Unlock()

	if !ok {
		return engineerr.NewNotFound(fmt.Sprintf("no prepared transaction %s", prepID))
	}

	for _, u := range prepared.UTXOs {
		lockKey := fmt.Sprintf("utxo-lease:%s:%d", u.TxHash, u.Vout)
		if err := cache.ReleaseLock(ctx, lockKey, prepared.LeaseToken); err != nil {
			logger.Error("failed to release utxo lease", zap.String("key", lockKey), zap.Error(err))
		}
	}
	return nil
}

// SignSendTransaction signs every input of a prepared transaction with the
// key at its derivation index and broadcasts it, consuming the prepared
// handle and its leases regardless of broadcast outcome.
func (w *Wallet) SignSendTransaction(ctx context.Context, prepID string, derivationIndex uint32) (string, error) {
	w.mu.Lock()
	prepared, ok := w.prepared[prepID]
	if ok {
		delete(w.prepared, prepID)
	}
	w.mu.Unlock()

	if !ok {
		return "", engineerr.NewNotFound(fmt.Sprintf("no prepared transaction %s", prepID))
	}
	defer func() {
		for _, u := range prepared.UTXOs {
			lockKey := fmt.Sprintf("utxo-lease:%s:%d", u.TxHash, u.Vout)
			_ = cache.ReleaseLock(ctx, lockKey, prepared.LeaseToken)
		}
	}()

	wif, err := w.privKeyForIndex(derivationIndex)
	if err != nil {
		return "", engineerr.Wrap(engineerr.Bitcoin, "failed to recover signing key", err)
	}

	pubKey := wif.PrivKey.PubKey().SerializeCompressed()
	witnessPubKeyHash := btcutil.Hash160(pubKey)
	witnessAddr, err := btcutil.NewAddressWitnessPubKeyHash(witnessPubKeyHash, w.params)
	if err != nil {
		return "", fmt.Errorf("failed to build witness address: %w", err)
	}
	witnessScript, err := txscript.PayToAddrScript(witnessAddr)
	if err != nil {
		return "", fmt.Errorf("failed to build witness script: %w", err)
	}

	sigHashes := txscript.NewTxSigHashes(prepared.Tx, nil)
	for i, txIn := range prepared.Tx.TxIn {
		utxo := prepared.UTXOs[i]
		sig, err := txscript.RawTxInWitnessSignature(
			prepared.Tx, sigHashes, i, utxo.Value, witnessScript, txscript.SigHashAll, wif.PrivKey)
		if err != nil {
			return "", engineerr.Wrap(engineerr.Bitcoin, fmt.Sprintf("failed to sign input %d", i), err)
		}
		txIn.Witness = wire.TxWitness{sig, pubKey}
	}

	return w.broadcast(ctx, prepared.Tx)
}

func (w *Wallet) broadcast(ctx context.Context, tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	txHex := hex.EncodeToString(buf.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.blockstreamBase()+"/tx", strings.NewReader(txHex))
	if err != nil {
		return "", fmt.Errorf("failed to build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", engineerr.Wrap(engineerr.Bitcoin, "failed to broadcast transaction", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read broadcast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", engineerr.NewBitcoin("broadcast", fmt.Sprintf("broadcast rejected: %s", string(body)), nil)
	}

	txid := tx.TxHash().String()
	logger.Info("transaction broadcast", zap.String("txid", txid), zap.String("network", w.network))
	return txid, nil
}

type esploraTxStatus struct {
	Confirmed   bool `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

// GetTransaction reports confirmation status for a previously-broadcast
// txid, used by the reconciler to resolve on-chain withdrawals.
func (w *Wallet) GetTransaction(ctx context.Context, txid string) (confirmed bool, blockHeight int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.blockstreamBase()+"/tx/"+txid+"/status", nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to build transaction status request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, 0, engineerr.Wrap(engineerr.Bitcoin, "failed to query transaction status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, 0, engineerr.NewNotFound(fmt.Sprintf("transaction %s not found", txid))
	}
	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("chain backend returned status %d", resp.StatusCode)
	}

	var status esploraTxStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, 0, fmt.Errorf("failed to parse transaction status: %w", err)
	}
	return status.Confirmed, status.BlockHeight, nil
}
