package payjoin

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// OutpointCallback asks the receiver's seen-inputs store whether an outpoint
// has already been used in a previous payjoin proposal, and records it if
// not (a test-and-set, not a pure test).
type OutpointCallback func(op wire.OutPoint) (bool, error)

// MaybeInputsSeen has confirmed script-type uniformity but hasn't yet
// checked whether any input was already used in a prior payjoin attempt.
type MaybeInputsSeen struct {
	psbt   *psbt.Packet
	params SenderParams
}

// CheckNoInputsSeenBefore enforces §4.5: a sender replaying the same input
// across multiple payjoin requests (e.g. to probe which candidate the
// receiver picks, or to double-spend) is rejected. isKnown must atomically
// test-and-set, since concurrent requests could otherwise race.
func (m *MaybeInputsSeen) CheckNoInputsSeenBefore(isKnown OutpointCallback) (*OutputsUnknown, error) {
	for _, txIn := range m.psbt.UnsignedTx.TxIn {
		known, err := isKnown(txIn.PreviousOutPoint)
		if err != nil {
			return nil, ServerError(err)
		}
		if known {
			return nil, BadRequest(TagInputSeen, "input %s has been seen in a previous payjoin proposal", txIn.PreviousOutPoint)
		}
	}
	return &OutputsUnknown{psbt: m.psbt, params: m.params}, nil
}
