// Package payjoin implements the receiver side of BIP-78: an eight-state
// typestate pipeline that turns a sender's Original PSBT into a signed
// Payjoin Proposal PSBT while enforcing the protocol's privacy and
// anti-probing invariants at each step. Every state transition takes the
// caller's wallet/RPC logic as an injected callback; this package never
// talks to a node or a database directly.
package payjoin

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// maxContentLength bounds the base64 body accepted from a sender: a PSBT up
// to 4,000,000 bytes, expressed in its base64-inflated form (4/3 the binary
// size).
const maxContentLength = 4_000_000 * 4 / 3

// Headers abstracts the subset of an inbound HTTP request's headers the
// pipeline needs, so callers can adapt gin.Context, net/http.Header, or a
// test double without this package importing an HTTP framework.
type Headers interface {
	Get(key string) (string, bool)
}

// UncheckedProposal is the sender's Original PSBT exactly as received: no
// validation has run yet. Only ExtractTxToScheduleBroadcast,
// CheckBroadcastSuitability, and AssumeInteractiveReceiver may be called on
// it.
type UncheckedProposal struct {
	psbt   *psbt.Packet
	params SenderParams
}

// FromRequest parses and minimally sanity-checks a sender's POST body and
// query string. It does not run any of the five pipeline checks.
func FromRequest(body io.Reader, rawQuery string, headers Headers) (*UncheckedProposal, error) {
	contentType, ok := headers.Get("Content-Type")
	if !ok {
		return nil, BadRequest(TagMissingHeader, "missing Content-Type header")
	}
	if !strings.HasPrefix(contentType, "text/plain") {
		return nil, BadRequest(TagInvalidContentType, "expected Content-Type text/plain, got %q", contentType)
	}

	contentLengthStr, ok := headers.Get("Content-Length")
	if !ok {
		return nil, BadRequest(TagMissingHeader, "missing Content-Length header")
	}
	contentLength, err := strconv.ParseInt(contentLengthStr, 10, 64)
	if err != nil || contentLength < 0 {
		return nil, BadRequest(TagInvalidContentLength, "invalid Content-Length %q", contentLengthStr)
	}
	if contentLength > maxContentLength {
		return nil, BadRequest(TagContentLengthTooLarge, "Content-Length %d exceeds limit %d", contentLength, maxContentLength)
	}

	raw := make([]byte, contentLength)
	if _, err := io.ReadFull(body, raw); err != nil {
		return nil, BadRequest(TagIO, "failed to read request body: %v", err)
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(decoded, raw)
	if err != nil {
		return nil, BadRequest(TagBase64, "failed to base64-decode PSBT: %v", err)
	}
	decoded = decoded[:n]

	pkt, err := psbt.NewFromRawBytes(bytes.NewReader(decoded), false)
	if err != nil {
		return nil, BadRequest(TagInvalidPsbt, "failed to parse PSBT: %v", err)
	}
	if err := validatePsbtConsistency(pkt); err != nil {
		return nil, BadRequest(TagInconsistentPsbt, "%v", err)
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, BadRequest(TagSenderParams, "failed to parse query string: %v", err)
	}
	params, err := parseSenderParams(values)
	if err != nil {
		return nil, err
	}

	return &UncheckedProposal{psbt: pkt, params: params}, nil
}

// validatePsbtConsistency confirms every input carries usable UTXO data and
// that any non_witness_utxo actually matches the outpoint it is attached to.
func validatePsbtConsistency(pkt *psbt.Packet) error {
	if len(pkt.Inputs) != len(pkt.UnsignedTx.TxIn) {
		return fmt.Errorf("psbt has %d inputs but unsigned tx has %d", len(pkt.Inputs), len(pkt.UnsignedTx.TxIn))
	}
	if len(pkt.Outputs) != len(pkt.UnsignedTx.TxOut) {
		return fmt.Errorf("psbt has %d outputs but unsigned tx has %d", len(pkt.Outputs), len(pkt.UnsignedTx.TxOut))
	}
	for i, txIn := range pkt.UnsignedTx.TxIn {
		in := pkt.Inputs[i]
		switch {
		case in.NonWitnessUtxo != nil:
			hash := in.NonWitnessUtxo.TxHash()
			if !hash.IsEqual(&txIn.PreviousOutPoint.Hash) {
				return fmt.Errorf("input %d: non_witness_utxo txid does not match previous outpoint", i)
			}
			if int(txIn.PreviousOutPoint.Index) >= len(in.NonWitnessUtxo.TxOut) {
				return fmt.Errorf("input %d: previous outpoint index out of range", i)
			}
		case in.WitnessUtxo != nil:
			// nothing further to cross-check without the full previous tx.
		default:
			return fmt.Errorf("input %d: missing utxo information", i)
		}
	}
	return nil
}

// ExtractTxToScheduleBroadcast returns the sender's original transaction as
// it would broadcast unmodified, for a payment processor to schedule as a
// fallback before any of the checks below run (§4.2).
func (p *UncheckedProposal) ExtractTxToScheduleBroadcast() *wire.MsgTx {
	return p.psbt.UnsignedTx.Copy()
}

func (p *UncheckedProposal) feeRate() (FeeRate, error) {
	fee, err := psbtFee(p.psbt)
	if err != nil {
		return 0, err
	}
	vsize := p.psbt.UnsignedTx.SerializeSize()
	if vsize <= 0 {
		return 0, fmt.Errorf("unsigned transaction has zero size")
	}
	return FeeRate(float64(fee) / float64(vsize)), nil
}

// CheckBroadcastSuitability enforces §4.2: the Original PSBT must clear an
// optional fee-rate floor and the node must confirm it would currently be
// accepted into the mempool. Use this for a non-interactive receiver; an
// interactive receiver (human present, already chose to proceed) may call
// AssumeInteractiveReceiver instead.
func (p *UncheckedProposal) CheckBroadcastSuitability(minFeeRate *FeeRate, canBroadcast func(*wire.MsgTx) (bool, error)) (*MaybeInputsOwned, error) {
	rate, err := p.feeRate()
	if err != nil {
		return nil, ServerError(err)
	}
	if minFeeRate != nil && rate < *minFeeRate {
		return nil, BadRequest(TagPsbtBelowFeeRate, "original psbt fee rate %.3f sat/vB is below the minimum %.3f sat/vB", float64(rate), float64(*minFeeRate))
	}
	ok, err := canBroadcast(p.ExtractTxToScheduleBroadcast())
	if err != nil {
		return nil, ServerError(err)
	}
	if !ok {
		return nil, BadRequest(TagNotBroadcastable, "original psbt would not be accepted by the mempool")
	}
	return &MaybeInputsOwned{psbt: p.psbt, params: p.params}, nil
}

// AssumeInteractiveReceiver skips the broadcast-suitability check entirely,
// for receivers that already know (e.g. from a live UI) that the sender's
// funds are good.
func (p *UncheckedProposal) AssumeInteractiveReceiver() *MaybeInputsOwned {
	return &MaybeInputsOwned{psbt: p.psbt, params: p.params}
}
