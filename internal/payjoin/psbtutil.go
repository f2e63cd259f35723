package payjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// previousTxOut resolves the spent output for input i of pkt, preferring the
// witness_utxo when present as BIP-174 recommends.
func previousTxOut(pkt *psbt.Packet, i int) (*wire.TxOut, error) {
	in := pkt.Inputs[i]
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}
	if in.NonWitnessUtxo != nil {
		vout := pkt.UnsignedTx.TxIn[i].PreviousOutPoint.Index
		if int(vout) >= len(in.NonWitnessUtxo.TxOut) {
			return nil, fmt.Errorf("input %d: previous outpoint index %d out of range", i, vout)
		}
		return in.NonWitnessUtxo.TxOut[vout], nil
	}
	return nil, fmt.Errorf("input %d: missing witness_utxo and non_witness_utxo", i)
}

// psbtFee returns the difference between total input value and total output
// value of the unsigned transaction.
func psbtFee(pkt *psbt.Packet) (int64, error) {
	var in int64
	for i := range pkt.UnsignedTx.TxIn {
		txOut, err := previousTxOut(pkt, i)
		if err != nil {
			return 0, err
		}
		in += txOut.Value
	}
	var out int64
	for _, txOut := range pkt.UnsignedTx.TxOut {
		out += txOut.Value
	}
	fee := in - out
	if fee < 0 {
		return 0, fmt.Errorf("psbt outputs exceed inputs by %d sats", -fee)
	}
	return fee, nil
}

// clonePacket deep-copies the parts of a Packet that the pipeline later
// diffs the working PSBT against (the "original" snapshot kept from
// OutputsUnknown onward).
func clonePacket(pkt *psbt.Packet) *psbt.Packet {
	clone := &psbt.Packet{
		UnsignedTx: pkt.UnsignedTx.Copy(),
		Inputs:     make([]psbt.PInput, len(pkt.Inputs)),
		Outputs:    make([]psbt.POutput, len(pkt.Outputs)),
	}
	copy(clone.Inputs, pkt.Inputs)
	copy(clone.Outputs, pkt.Outputs)
	return clone
}

// insertInput splices a new input into both the unsigned transaction and the
// PSBT's parallel Inputs slice at position idx, preserving index alignment.
func insertInput(pkt *psbt.Packet, idx int, txIn *wire.TxIn, pin psbt.PInput) {
	tx := pkt.UnsignedTx
	tx.TxIn = append(tx.TxIn, nil)
	copy(tx.TxIn[idx+1:], tx.TxIn[idx:])
	tx.TxIn[idx] = txIn

	pkt.Inputs = append(pkt.Inputs, psbt.PInput{})
	copy(pkt.Inputs[idx+1:], pkt.Inputs[idx:])
	pkt.Inputs[idx] = pin
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
