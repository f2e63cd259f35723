package payjoin

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest_MissingContentType(t *testing.T) {
	pkt := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	_, b64 := psbtBody(t, pkt)
	headers := headerMap{"Content-Length": []string{strconv.Itoa(len(b64))}}

	_, err := FromRequest(bytes.NewReader([]byte(b64)), "v=1", headers)
	require.Error(t, err)
	var pjErr *Error
	require.ErrorAs(t, err, &pjErr)
	assert.Equal(t, TagMissingHeader, pjErr.Request.Tag)
}

func TestFromRequest_RejectsNonPlainContentType(t *testing.T) {
	pkt := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	_, b64 := psbtBody(t, pkt)
	headers := headerMap{
		"Content-Type":   []string{"application/json"},
		"Content-Length": []string{strconv.Itoa(len(b64))},
	}
	_, err := FromRequest(bytes.NewReader([]byte(b64)), "v=1", headers)
	require.Error(t, err)
	var pjErr *Error
	require.ErrorAs(t, err, &pjErr)
	assert.Equal(t, TagInvalidContentType, pjErr.Request.Tag)
}

func TestFromRequest_RejectsOversizedBody(t *testing.T) {
	pkt := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	_, b64 := psbtBody(t, pkt)
	headers := headerMap{
		"Content-Type":   []string{"text/plain"},
		"Content-Length": []string{strconv.Itoa(maxContentLength + 1)},
	}
	_, err := FromRequest(bytes.NewReader([]byte(b64)), "v=1", headers)
	require.Error(t, err)
	var pjErr *Error
	require.ErrorAs(t, err, &pjErr)
	assert.Equal(t, TagContentLengthTooLarge, pjErr.Request.Tag)
}

func TestFromRequest_ParsesSenderParams(t *testing.T) {
	pkt := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, pkt, "v=1&additionalfeeoutputindex=1&maxadditionalfeecontribution=182&disableoutputsubstitution=true")

	assert.Equal(t, 1, proposal.params.Version)
	require.True(t, proposal.params.HasAdditionalFee)
	assert.Equal(t, 1, proposal.params.AdditionalFeeOutputIndex)
	assert.EqualValues(t, 182, proposal.params.MaxAdditionalFeeContribution)
	assert.True(t, proposal.params.DisableOutputSubstitution)
}

func TestUncheckedProposal_FeeRate(t *testing.T) {
	// input 100_000, outputs 50_000 + 49_000 => fee 1000 sats.
	pkt := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, pkt, "v=1")

	rate, err := proposal.feeRate()
	require.NoError(t, err)
	vsize := proposal.psbt.UnsignedTx.SerializeSize()
	assert.InDelta(t, float64(1000)/float64(vsize), float64(rate), 1e-9)
}

func TestCheckBroadcastSuitability_RejectsBelowMinFeeRate(t *testing.T) {
	pkt := buildOriginalPsbt(t, 100_000, 50_000, 49_000)
	proposal := fromRequestOK(t, pkt, "v=1")

	high := FeeRate(1_000_000)
	_, err := proposal.CheckBroadcastSuitability(&high, func(tx *wire.MsgTx) (bool, error) { return true, nil })
	require.Error(t, err)
}
