package payjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// ProvisionalProposal has the full set of inputs and outputs the payjoin
// transaction will have; it still needs a fee adjustment and a wallet
// signature before it can be returned to the sender.
type ProvisionalProposal struct {
	originalPsbt *psbt.Packet
	payjoinPsbt  *psbt.Packet
	params       SenderParams
	ownedVouts   []int
}

// senderInputIndexes returns, in payjoinPsbt input order, the indexes that
// came from the sender's Original PSBT rather than from the receiver's
// contribution. Both slices are outpoint-ordered relative to each other
// (contribution only inserts, never reorders sender inputs), so a single
// forward scan suffices.
func (p *ProvisionalProposal) senderInputIndexes() []int {
	original := p.originalPsbt.UnsignedTx.TxIn
	var indexes []int
	next := 0
	for i, txIn := range p.payjoinPsbt.UnsignedTx.TxIn {
		if next < len(original) && txIn.PreviousOutPoint == original[next].PreviousOutPoint {
			indexes = append(indexes, i)
			next++
		}
	}
	return indexes
}

// applyFee enforces §4.9: the receiver may recoup part of the fee its
// contributed input(s) added. The amount is one input's expected vsize at
// the higher of the caller's floor and the sender's minfeerate, capped at
// what the sender pre-authorized via
// additionalfeeoutputindex/maxadditionalfeecontribution; when the cap
// applies, the recouped fee is below that rate.
//
// All inputs share one script type by the time this runs (§4.4), so the
// weight of input 0 stands in for the weight any contributed input added.
func (p *ProvisionalProposal) applyFee(callerMinFeeRate *FeeRate) error {
	minFeeRate := FeeRate(0)
	if callerMinFeeRate != nil {
		minFeeRate = *callerMinFeeRate
	}
	if p.params.HasMinFeeRate && p.params.MinFeeRate > minFeeRate {
		minFeeRate = p.params.MinFeeRate
	}

	if len(p.payjoinPsbt.UnsignedTx.TxIn) == 0 {
		return fmt.Errorf("payjoin psbt has no inputs")
	}
	txOut, err := previousTxOut(p.payjoinPsbt, 0)
	if err != nil {
		return err
	}
	inputType, err := classifyInputType(txOut.PkScript, &p.payjoinPsbt.Inputs[0])
	if err != nil {
		return err
	}

	if !p.params.HasAdditionalFee {
		return nil
	}

	additionalFee := minFeeRate.Fee(inputType.ExpectedInputVSize())
	if additionalFee > p.params.MaxAdditionalFeeContribution {
		additionalFee = p.params.MaxAdditionalFeeContribution
	}
	if additionalFee <= 0 {
		return nil
	}

	idx := p.params.AdditionalFeeOutputIndex
	if idx >= len(p.payjoinPsbt.UnsignedTx.TxOut) {
		return fmt.Errorf("additionalfeeoutputindex %d out of range", idx)
	}
	if containsInt(p.ownedVouts, idx) {
		// the sender nominated one of the receiver's own outputs to
		// absorb the fee; the receiver does not pay itself.
		return nil
	}
	p.payjoinPsbt.UnsignedTx.TxOut[idx].Value -= int64(additionalFee)
	return nil
}

// preparePsbt strips signing-relevant metadata the final proposal must not
// carry: derivation paths (none of the sender's or receiver's business once
// the proposal is built), and, for sender-owned inputs, anything only the
// sender's wallet can supply.
func (p *ProvisionalProposal) preparePsbt(processed *psbt.Packet) *PayjoinProposal {
	p.payjoinPsbt = processed

	for i := range p.payjoinPsbt.Outputs {
		p.payjoinPsbt.Outputs[i].Bip32Derivation = nil
		p.payjoinPsbt.Outputs[i].TaprootBip32Derivation = nil
		p.payjoinPsbt.Outputs[i].TaprootInternalKey = nil
	}
	for i := range p.payjoinPsbt.Inputs {
		p.payjoinPsbt.Inputs[i].Bip32Derivation = nil
		p.payjoinPsbt.Inputs[i].TaprootBip32Derivation = nil
		p.payjoinPsbt.Inputs[i].TaprootInternalKey = nil
		p.payjoinPsbt.Inputs[i].PartialSigs = nil
	}
	for _, i := range p.senderInputIndexes() {
		p.payjoinPsbt.Inputs[i].NonWitnessUtxo = nil
		p.payjoinPsbt.Inputs[i].WitnessUtxo = nil
		p.payjoinPsbt.Inputs[i].FinalScriptSig = nil
		p.payjoinPsbt.Inputs[i].FinalScriptWitness = nil
		p.payjoinPsbt.Inputs[i].TaprootKeySpendSig = nil
	}

	return &PayjoinProposal{psbt: p.payjoinPsbt, ownedVouts: p.ownedVouts, params: p.params}
}

// FinalizeProposal runs applyFee and then asks the wallet to sign the
// receiver's own inputs, producing the terminal PayjoinProposal the sender's
// HTTP response body is built from.
func (p *ProvisionalProposal) FinalizeProposal(walletProcessPsbt func(*psbt.Packet) (*psbt.Packet, error), minFeeRate *FeeRate) (*PayjoinProposal, error) {
	for _, i := range p.senderInputIndexes() {
		p.payjoinPsbt.Inputs[i].FinalScriptSig = nil
		p.payjoinPsbt.Inputs[i].FinalScriptWitness = nil
		p.payjoinPsbt.Inputs[i].TaprootKeySpendSig = nil
	}

	if err := p.applyFee(minFeeRate); err != nil {
		return nil, ServerError(err)
	}

	processed, err := walletProcessPsbt(p.payjoinPsbt)
	if err != nil {
		return nil, ServerError(err)
	}

	return p.preparePsbt(processed), nil
}
