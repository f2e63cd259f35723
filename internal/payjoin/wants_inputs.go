package payjoin

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

func errOutOfRange(op wire.OutPoint) error {
	return fmt.Errorf("outpoint %s: index out of range of its previous transaction", op)
}

// WantsInputs has settled the output set and may now contribute one or more
// of the receiver's own UTXOs as payjoin inputs, the step that actually buys
// the privacy benefit: it makes the resulting transaction look like it could
// have been a simple coinjoin or an ordinary multi-input spend.
type WantsInputs struct {
	originalPsbt *psbt.Packet
	payjoinPsbt  *psbt.Packet
	params       SenderParams
	ownedVouts   []int
}

// TryPreservingPrivacy picks a candidate (or set of candidates) from the
// receiver's available UTXOs that best preserves privacy given the shape of
// this transaction (§4.8):
//   - more than 2 outputs: a payment batch, so accumulate greedily until the
//     new outputs are covered (coin selection has less to hide behind
//     already, so thoroughness matters more than UIH avoidance).
//   - exactly 2 outputs: the classic single-payment case, where the
//     unnecessary-input heuristic (UIH) is the main observable signal —
//     avoid it.
//   - fewer than 2 outputs: nothing to optimize, take the first candidate.
func (w *WantsInputs) TryPreservingPrivacy(candidates map[btcutil.Amount]wire.OutPoint) ([]wire.OutPoint, error) {
	if len(candidates) == 0 {
		return nil, &SelectionError{Kind: SelectionEmpty}
	}
	switch {
	case len(w.payjoinPsbt.UnsignedTx.TxOut) > 2:
		return w.doCoinSelection(candidates)
	case len(w.payjoinPsbt.UnsignedTx.TxOut) == 2:
		return w.avoidUIH(candidates)
	default:
		return w.selectFirstCandidate(candidates)
	}
}

func (w *WantsInputs) doCoinSelection(candidates map[btcutil.Amount]wire.OutPoint) ([]wire.OutPoint, error) {
	var outputAmount, originalOutputAmount int64
	for _, out := range w.payjoinPsbt.UnsignedTx.TxOut {
		outputAmount += out.Value
	}
	for _, out := range w.originalPsbt.UnsignedTx.TxOut {
		originalOutputAmount += out.Value
	}

	// The outputs the receiver wants to fund may already exceed the
	// sender's original outputs (e.g. after output substitution added
	// value); only the positive difference needs covering.
	var target int64
	if diff := outputAmount - originalOutputAmount; diff > 0 {
		target = diff
	}

	var selected []wire.OutPoint
	var sum int64
	for amt, op := range candidates {
		selected = append(selected, op)
		sum += int64(amt)
		if sum >= target {
			return selected, nil
		}
	}
	return nil, &SelectionError{Kind: SelectionCannotAfford}
}

func (w *WantsInputs) avoidUIH(candidates map[btcutil.Amount]wire.OutPoint) ([]wire.OutPoint, error) {
	minOut := int64(math.MaxInt64)
	for _, out := range w.payjoinPsbt.UnsignedTx.TxOut {
		minOut = minInt64(minOut, out.Value)
	}
	minIn := int64(math.MaxInt64)
	for i := range w.payjoinPsbt.UnsignedTx.TxIn {
		txOut, err := previousTxOut(w.payjoinPsbt, i)
		if err != nil {
			return nil, ServerError(err)
		}
		minIn = minInt64(minIn, txOut.Value)
	}
	priorPayment := w.payjoinPsbt.UnsignedTx.TxOut[w.ownedVouts[0]].Value

	for amt, op := range candidates {
		candidateMinOut := minInt64(minOut, priorPayment+int64(amt))
		candidateMinIn := minInt64(minIn, int64(amt))
		// With candidateMinIn > candidateMinOut every input is larger than
		// the smallest output, so that output reads as the sender's change
		// (the UIH1 shape of an ordinary payment) and no input looks
		// unnecessary (UIH2 is avoided).
		if candidateMinIn > candidateMinOut {
			return []wire.OutPoint{op}, nil
		}
	}
	return nil, &SelectionError{Kind: SelectionNotFound}
}

func (w *WantsInputs) selectFirstCandidate(candidates map[btcutil.Amount]wire.OutPoint) ([]wire.OutPoint, error) {
	for _, op := range candidates {
		return []wire.OutPoint{op}, nil
	}
	return nil, &SelectionError{Kind: SelectionNotFound}
}

// ContributeWitnessInput splices a segwit UTXO into the working PSBT at a
// cryptographically random position, and adds its value to a randomly
// chosen receiver-owned output rather than always the first one (§9): both
// choices exist purely so a sender cannot learn anything about receiver
// wallet internals from where the contributed input lands or which output
// absorbed its value.
func (w *WantsInputs) ContributeWitnessInput(txOut *wire.TxOut, outpoint wire.OutPoint) (*ProvisionalProposal, error) {
	idx, err := randIndexInclusive(len(w.payjoinPsbt.UnsignedTx.TxIn))
	if err != nil {
		return nil, ServerError(err)
	}
	voutIdx, err := randChoiceInt(w.ownedVouts)
	if err != nil {
		return nil, ServerError(err)
	}

	sequence := wire.MaxTxInSequenceNum
	if len(w.payjoinPsbt.UnsignedTx.TxIn) > 0 {
		sequence = w.payjoinPsbt.UnsignedTx.TxIn[0].Sequence
	}

	w.payjoinPsbt.UnsignedTx.TxOut[voutIdx].Value += txOut.Value

	insertInput(w.payjoinPsbt, idx, &wire.TxIn{PreviousOutPoint: outpoint, Sequence: sequence}, psbt.PInput{WitnessUtxo: txOut})

	return &ProvisionalProposal{
		originalPsbt: w.originalPsbt,
		payjoinPsbt:  w.payjoinPsbt,
		params:       w.params,
		ownedVouts:   w.ownedVouts,
	}, nil
}

// SkipContribution moves straight to fee finalization without adding a
// receiver input, the best-effort fallback when no candidate UTXO preserves
// privacy or the wallet has nothing spendable to offer.
func (w *WantsInputs) SkipContribution() *ProvisionalProposal {
	return &ProvisionalProposal{
		originalPsbt: w.originalPsbt,
		payjoinPsbt:  w.payjoinPsbt,
		params:       w.params,
		ownedVouts:   w.ownedVouts,
	}
}

// ContributeNonWitnessInput is the legacy-input analogue of
// ContributeWitnessInput: it attaches the full previous transaction instead
// of a witness_utxo, as BIP-174 requires for non-segwit spends.
func (w *WantsInputs) ContributeNonWitnessInput(prevTx *wire.MsgTx, outpoint wire.OutPoint) (*ProvisionalProposal, error) {
	if int(outpoint.Index) >= len(prevTx.TxOut) {
		return nil, ServerError(errOutOfRange(outpoint))
	}
	value := prevTx.TxOut[outpoint.Index].Value

	idx, err := randIndexInclusive(len(w.payjoinPsbt.UnsignedTx.TxIn))
	if err != nil {
		return nil, ServerError(err)
	}
	voutIdx, err := randChoiceInt(w.ownedVouts)
	if err != nil {
		return nil, ServerError(err)
	}

	sequence := wire.MaxTxInSequenceNum
	if len(w.payjoinPsbt.UnsignedTx.TxIn) > 0 {
		sequence = w.payjoinPsbt.UnsignedTx.TxIn[0].Sequence
	}

	w.payjoinPsbt.UnsignedTx.TxOut[voutIdx].Value += value

	insertInput(w.payjoinPsbt, idx, &wire.TxIn{PreviousOutPoint: outpoint, Sequence: sequence}, psbt.PInput{NonWitnessUtxo: prevTx})

	return &ProvisionalProposal{
		originalPsbt: w.originalPsbt,
		payjoinPsbt:  w.payjoinPsbt,
		params:       w.params,
		ownedVouts:   w.ownedVouts,
	}, nil
}
