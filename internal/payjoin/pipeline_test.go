package payjoin

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFullPipeline_HappyPath drives a complete receive, modeled on spec.md's
// S1 scenario: one sender input pays the receiver plus change, the receiver
// substitutes its output for a fresh address and contributes one input of
// its own, then the fee is rebalanced and the wallet signs.
func TestFullPipeline_HappyPath(t *testing.T) {
	original := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, original, "v=1&additionalfeeoutputindex=1&maxadditionalfeecontribution=1000")

	maybeOwned := proposal.AssumeInteractiveReceiver()

	maybeMixed, err := maybeOwned.CheckInputsNotOwned(func(pkScript []byte) (bool, error) { return false, nil })
	require.NoError(t, err)

	maybeSeen, err := maybeMixed.CheckNoMixedInputScripts()
	require.NoError(t, err)

	seen := map[wire.OutPoint]bool{}
	outputsUnknown, err := maybeSeen.CheckNoInputsSeenBefore(func(op wire.OutPoint) (bool, error) {
		if seen[op] {
			return true, nil
		}
		seen[op] = true
		return false, nil
	})
	require.NoError(t, err)

	receiverOutputScript := p2wpkhScript(0x01)
	wantsOutputs, err := outputsUnknown.IdentifyReceiverOutputs(func(pkScript []byte) (bool, error) {
		return bytes.Equal(pkScript, receiverOutputScript), nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0}, wantsOutputs.ownedVouts)

	wantsInputs, err := wantsOutputs.TrySubstituteReceiverOutput(func() ([]byte, error) { return p2wpkhScript(0x09), nil })
	require.NoError(t, err)

	candidateOutpoint := outpoint(0xBB, 0)
	candidates := map[btcutil.Amount]wire.OutPoint{60_000: candidateOutpoint}
	picked, err := wantsInputs.TryPreservingPrivacy(candidates)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, candidateOutpoint, picked[0])

	contributedUtxo := wire.NewTxOut(60_000, p2wpkhScript(0xBB))
	provisional, err := wantsInputs.ContributeWitnessInput(contributedUtxo, picked[0])
	require.NoError(t, err)

	require.Len(t, provisional.payjoinPsbt.UnsignedTx.TxIn, 2)
	require.Len(t, provisional.payjoinPsbt.UnsignedTx.TxOut, 2)

	minFeeRate := FeeRate(1)
	finalProposal, err := provisional.FinalizeProposal(func(pkt *psbt.Packet) (*psbt.Packet, error) {
		return pkt, nil
	}, &minFeeRate)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, finalProposal.OwnedVouts())
	assert.Len(t, finalProposal.UTXOsToBeLocked(), 2)

	// the sender's original input must still be present, untouched.
	found := false
	for _, txIn := range finalProposal.Psbt().UnsignedTx.TxIn {
		if txIn.PreviousOutPoint == outpoint(0xAA, 0) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckInputsNotOwned_RejectsOwnedInput(t *testing.T) {
	original := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, original, "v=1")
	maybeOwned := proposal.AssumeInteractiveReceiver()

	_, err := maybeOwned.CheckInputsNotOwned(func(pkScript []byte) (bool, error) { return true, nil })
	require.Error(t, err)
	var pjErr *Error
	require.ErrorAs(t, err, &pjErr)
	assert.Equal(t, TagInputOwned, pjErr.Request.Tag)
}

func TestCheckNoInputsSeenBefore_RejectsReplay(t *testing.T) {
	original := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, original, "v=1")
	maybeOwned := proposal.AssumeInteractiveReceiver()
	maybeMixed, err := maybeOwned.CheckInputsNotOwned(func(pkScript []byte) (bool, error) { return false, nil })
	require.NoError(t, err)
	maybeSeen, err := maybeMixed.CheckNoMixedInputScripts()
	require.NoError(t, err)

	_, err = maybeSeen.CheckNoInputsSeenBefore(func(op wire.OutPoint) (bool, error) { return true, nil })
	require.Error(t, err)
	var pjErr *Error
	require.ErrorAs(t, err, &pjErr)
	assert.Equal(t, TagInputSeen, pjErr.Request.Tag)
}

func TestIdentifyReceiverOutputs_RejectsNoPayment(t *testing.T) {
	original := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, original, "v=1")
	maybeOwned := proposal.AssumeInteractiveReceiver()
	maybeMixed, err := maybeOwned.CheckInputsNotOwned(func(pkScript []byte) (bool, error) { return false, nil })
	require.NoError(t, err)
	maybeSeen, err := maybeMixed.CheckNoMixedInputScripts()
	require.NoError(t, err)
	outputsUnknown, err := maybeSeen.CheckNoInputsSeenBefore(func(op wire.OutPoint) (bool, error) { return false, nil })
	require.NoError(t, err)

	_, err = outputsUnknown.IdentifyReceiverOutputs(func(pkScript []byte) (bool, error) { return false, nil })
	require.Error(t, err)
	var pjErr *Error
	require.ErrorAs(t, err, &pjErr)
	assert.Equal(t, TagMissingPayment, pjErr.Request.Tag)
}
