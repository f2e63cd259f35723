package payjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// WantsOutputs knows which outputs belong to the receiver and may replace
// them with freshly generated addresses (§4.7) before moving on to
// contributing inputs.
type WantsOutputs struct {
	originalPsbt *psbt.Packet
	payjoinPsbt  *psbt.Packet
	params       SenderParams
	ownedVouts   []int
}

// IsOutputSubstitutionDisabled reports whether the sender asked the receiver
// not to change any output (e.g. because the sender already showed the
// recipient the exact Original PSBT outputs in a UI).
func (w *WantsOutputs) IsOutputSubstitutionDisabled() bool {
	return w.params.DisableOutputSubstitution
}

// TrySubstituteReceiverOutput replaces the receiver's single existing output
// with a freshly generated one of the same value, the common case of a
// receiver wallet that wants every payjoin to land on a new address (breaks
// the address-reuse fingerprint a static payjoin endpoint would otherwise
// create).
func (w *WantsOutputs) TrySubstituteReceiverOutput(generateScript func() ([]byte, error)) (*WantsInputs, error) {
	value := w.payjoinPsbt.UnsignedTx.TxOut[w.ownedVouts[0]].Value
	script, err := generateScript()
	if err != nil {
		return nil, ServerError(err)
	}
	return w.TrySubstituteReceiverOutputs([]*wire.TxOut{wire.NewTxOut(value, script)})
}

// TrySubstituteReceiverOutputs replaces the receiver's owned outputs
// positionally with the given replacements, appending any surplus
// replacements as new outputs. A nil slice is a no-op, letting a caller that
// doesn't want to substitute anything skip straight through (§4.7's
// "idempotent no-op path").
//
// Note: owned_vouts is not recomputed after surplus outputs are appended;
// callers relying on WantsInputs' notion of "the receiver's outputs" still
// see only the original positions. This mirrors the upstream reference
// behavior, which carries the same TODO.
func (w *WantsOutputs) TrySubstituteReceiverOutputs(outputs []*wire.TxOut) (*WantsInputs, error) {
	if outputs == nil {
		return &WantsInputs{
			originalPsbt: w.originalPsbt,
			payjoinPsbt:  w.payjoinPsbt,
			params:       w.params,
			ownedVouts:   w.ownedVouts,
		}, nil
	}
	if w.params.DisableOutputSubstitution {
		return nil, ServerError(fmt.Errorf("Output substitution is disabled."))
	}

	newOutputs := make([]*wire.TxOut, 0, len(w.payjoinPsbt.UnsignedTx.TxOut)+len(outputs))
	idx := 0
	for i, out := range w.payjoinPsbt.UnsignedTx.TxOut {
		if containsInt(w.ownedVouts, i) {
			if idx >= len(outputs) {
				return nil, ServerError(fmt.Errorf("not enough replacement outputs: need at least %d", len(w.ownedVouts)))
			}
			newOutputs = append(newOutputs, outputs[idx])
			idx++
		} else {
			newOutputs = append(newOutputs, out)
		}
	}
	for ; idx < len(outputs); idx++ {
		newOutputs = append(newOutputs, outputs[idx])
	}

	w.payjoinPsbt.UnsignedTx.TxOut = newOutputs
	for len(w.payjoinPsbt.Outputs) < len(newOutputs) {
		w.payjoinPsbt.Outputs = append(w.payjoinPsbt.Outputs, psbt.POutput{})
	}

	return &WantsInputs{
		originalPsbt: w.originalPsbt,
		payjoinPsbt:  w.payjoinPsbt,
		params:       w.params,
		ownedVouts:   w.ownedVouts,
	}, nil
}
