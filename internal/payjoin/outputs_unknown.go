package payjoin

import "github.com/btcsuite/btcd/btcutil/psbt"

// OutputsUnknown has validated every input; it now needs to find which
// output(s) of the Original PSBT pay the receiver.
type OutputsUnknown struct {
	psbt   *psbt.Packet
	params SenderParams
}

// IdentifyReceiverOutputs enforces §4.6: at least one output must pay the
// receiver, or there is nothing for this proposal to be about. From here on
// the pipeline keeps a frozen snapshot of the original transaction
// (originalPsbt) to diff the working copy (payjoinPsbt) against later, for
// fee accounting and for telling sender inputs apart from contributed ones.
func (o *OutputsUnknown) IdentifyReceiverOutputs(isReceiverOutput ScriptCallback) (*WantsOutputs, error) {
	var ownedVouts []int
	for vout, txOut := range o.psbt.UnsignedTx.TxOut {
		yes, err := isReceiverOutput(txOut.PkScript)
		if err != nil {
			return nil, ServerError(err)
		}
		if yes {
			ownedVouts = append(ownedVouts, vout)
		}
	}
	if len(ownedVouts) == 0 {
		return nil, BadRequest(TagMissingPayment, "original psbt makes no payment to the receiver")
	}
	return &WantsOutputs{
		originalPsbt: clonePacket(o.psbt),
		payjoinPsbt:  o.psbt,
		params:       o.params,
		ownedVouts:   ownedVouts,
	}, nil
}
