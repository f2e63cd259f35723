package payjoin

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWantsInputs(t *testing.T, paymentValue, changeValue int64, numOutputs int) *WantsInputs {
	t.Helper()
	original := buildOriginalPsbt(t, paymentValue+changeValue+1_000, paymentValue, changeValue)
	if numOutputs > 2 {
		for i := 2; i < numOutputs; i++ {
			original.UnsignedTx.TxOut = append(original.UnsignedTx.TxOut, wire.NewTxOut(10_000, p2wpkhScript(byte(0x10+i))))
			original.Outputs = append(original.Outputs, original.Outputs[0])
		}
	}
	return &WantsInputs{
		originalPsbt: clonePacket(original),
		payjoinPsbt:  original,
		params:       SenderParams{Version: 1},
		ownedVouts:   []int{0},
	}
}

func TestTryPreservingPrivacy_EmptyCandidates(t *testing.T) {
	w := newWantsInputs(t, 50_000, 49_000, 2)
	_, err := w.TryPreservingPrivacy(map[btcutil.Amount]wire.OutPoint{})
	require.Error(t, err)
	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Equal(t, SelectionEmpty, selErr.Kind)
}

func TestAvoidUIH_PicksInputLargerThanSmallestOutput(t *testing.T) {
	// outputs: 50_000 (payment) and 49_000 (change); a candidate of
	// 60_000 makes the smallest input exceed the smallest output, which
	// avoid_uih prefers over the 1_000 candidate, which would leave the
	// smallest input below the smallest output.
	w := newWantsInputs(t, 50_000, 49_000, 2)
	small := outpoint(0x01, 0)
	large := outpoint(0x02, 0)
	candidates := map[btcutil.Amount]wire.OutPoint{
		1_000:   small,
		60_000: large,
	}
	picked, err := w.TryPreservingPrivacy(candidates)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, large, picked[0])
}

func TestDoCoinSelection_AccumulatesToCoverDifference(t *testing.T) {
	w := newWantsInputs(t, 50_000, 49_000, 3) // >2 outputs triggers accumulation
	// bump one output so outputAmount exceeds originalOutputAmount by 20_000
	w.payjoinPsbt.UnsignedTx.TxOut[0].Value += 20_000

	op1 := outpoint(0x01, 0)
	op2 := outpoint(0x02, 0)
	candidates := map[btcutil.Amount]wire.OutPoint{10_000: op1, 15_000: op2}

	picked, err := w.TryPreservingPrivacy(candidates)
	require.NoError(t, err)
	assert.Len(t, picked, 2) // neither candidate alone covers 20_000
}

func TestContributeWitnessInput_InsertsAndKeepsAlignment(t *testing.T) {
	w := newWantsInputs(t, 50_000, 49_000, 2)
	txOut := wire.NewTxOut(25_000, p2wpkhScript(0x05))
	op := outpoint(0x03, 0)

	provisional, err := w.ContributeWitnessInput(txOut, op)
	require.NoError(t, err)
	require.Len(t, provisional.payjoinPsbt.UnsignedTx.TxIn, 2)
	require.Len(t, provisional.payjoinPsbt.Inputs, 2)

	var found bool
	for i, txIn := range provisional.payjoinPsbt.UnsignedTx.TxIn {
		if txIn.PreviousOutPoint == op {
			found = true
			assert.Equal(t, txOut, provisional.payjoinPsbt.Inputs[i].WitnessUtxo)
		}
	}
	assert.True(t, found)

	var total int64
	for _, out := range provisional.payjoinPsbt.UnsignedTx.TxOut {
		total += out.Value
	}
	assert.Equal(t, int64(50_000+49_000+25_000), total)
}
