package payjoin

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// PayjoinProposal is the terminal state: a fee-adjusted, wallet-signed PSBT
// ready to serialize back to the sender as the HTTP response body.
type PayjoinProposal struct {
	psbt       *psbt.Packet
	params     SenderParams
	ownedVouts []int
}

// Psbt returns the finished Payjoin Proposal PSBT.
func (p *PayjoinProposal) Psbt() *psbt.Packet { return p.psbt }

// OwnedVouts returns the output indexes that pay the receiver.
func (p *PayjoinProposal) OwnedVouts() []int { return p.ownedVouts }

// IsOutputSubstitutionDisabled reports whether the sender opted out of
// output substitution for this proposal.
func (p *PayjoinProposal) IsOutputSubstitutionDisabled() bool { return p.params.DisableOutputSubstitution }

// UTXOsToBeLocked returns every outpoint the finished transaction spends, so
// the receiver's wallet can lock them against being selected by another
// concurrent payjoin or a regular send before this proposal broadcasts.
func (p *PayjoinProposal) UTXOsToBeLocked() []wire.OutPoint {
	outpoints := make([]wire.OutPoint, len(p.psbt.UnsignedTx.TxIn))
	for i, txIn := range p.psbt.UnsignedTx.TxIn {
		outpoints[i] = txIn.PreviousOutPoint
	}
	return outpoints
}
