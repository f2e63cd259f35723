package payjoin

import "github.com/btcsuite/btcd/btcutil/psbt"

// MaybeMixedInputScripts has confirmed none of the sender's inputs are
// receiver-owned, but hasn't yet confirmed they all share one script type.
type MaybeMixedInputScripts struct {
	psbt   *psbt.Packet
	params SenderParams
}

// CheckNoMixedInputScripts enforces §4.4: every input of the Original PSBT
// must spend the same script type. Mixed types leak information about the
// sender's wallet composition that payjoin is meant to obscure, and this
// invariant is what lets applyFee later assume all inputs (including any the
// receiver contributes) share one weight estimate.
func (m *MaybeMixedInputScripts) CheckNoMixedInputScripts() (*MaybeInputsSeen, error) {
	var first InputType
	for i := range m.psbt.UnsignedTx.TxIn {
		txOut, err := previousTxOut(m.psbt, i)
		if err != nil {
			return nil, BadRequest(TagPrevTxOut, "%v", err)
		}
		it, err := classifyInputType(txOut.PkScript, &m.psbt.Inputs[i])
		if err != nil {
			return nil, BadRequest(TagInputType, "input %d: %v", i, err)
		}
		if i == 0 {
			first = it
			continue
		}
		if it != first {
			return nil, BadRequest(TagMixedInputScripts, "input %d is %s but input 0 is %s", i, it, first)
		}
	}
	return &MaybeInputsSeen{psbt: m.psbt, params: m.params}, nil
}
