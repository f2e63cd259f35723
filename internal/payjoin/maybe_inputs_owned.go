package payjoin

import "github.com/btcsuite/btcd/btcutil/psbt"

// ScriptCallback asks the receiver's wallet a yes/no question about a
// scriptPubKey: does it belong to us, or is it one of our addresses.
type ScriptCallback func(pkScript []byte) (bool, error)

// MaybeInputsOwned is an Original PSBT that passed broadcast-suitability
// (or opted out of it) but has not yet been checked for receiver-owned
// inputs.
type MaybeInputsOwned struct {
	psbt   *psbt.Packet
	params SenderParams
}

// CheckInputsNotOwned rejects the proposal if any input spends an output the
// receiver's own wallet controls (§4.3): a sender trying to pay the receiver
// with the receiver's own coins, usually by mistake or as a probe.
func (m *MaybeInputsOwned) CheckInputsNotOwned(isOwned ScriptCallback) (*MaybeMixedInputScripts, error) {
	for i := range m.psbt.UnsignedTx.TxIn {
		txOut, err := previousTxOut(m.psbt, i)
		if err != nil {
			return nil, BadRequest(TagPrevTxOut, "%v", err)
		}
		owned, err := isOwned(txOut.PkScript)
		if err != nil {
			return nil, ServerError(err)
		}
		if owned {
			return nil, BadRequest(TagInputOwned, "input %d spends a receiver-owned output", i)
		}
	}
	return &MaybeMixedInputScripts{psbt: m.psbt, params: m.params}, nil
}
