package payjoin

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func p2shScript(redeem []byte) []byte {
	hash := btcutil.Hash160(redeem)
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		panic(err)
	}
	return script
}

func TestClassifyInputType(t *testing.T) {
	wpkh := p2wpkhScript(0x01)

	cases := []struct {
		name    string
		script  []byte
		pin     psbt.PInput
		want    InputType
		wantErr bool
	}{
		{name: "p2wpkh", script: wpkh, want: InputTypeP2WPKH},
		{
			name:   "p2sh-p2wpkh",
			script: p2shScript(wpkh),
			pin:    psbt.PInput{RedeemScript: wpkh},
			want:   InputTypeP2SHP2WPKH,
		},
		{
			name:   "bare p2sh",
			script: p2shScript([]byte{txscript.OP_TRUE}),
			pin:    psbt.PInput{RedeemScript: []byte{txscript.OP_TRUE}},
			want:   InputTypeP2SH,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := classifyInputType(tc.script, &tc.pin)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpectedInputVSize_OrdersByWeight(t *testing.T) {
	assert.Less(t, InputTypeP2TR.ExpectedInputVSize(), InputTypeP2WPKH.ExpectedInputVSize())
	assert.Less(t, InputTypeP2WPKH.ExpectedInputVSize(), InputTypeP2SHP2WPKH.ExpectedInputVSize())
	assert.Less(t, InputTypeP2SHP2WPKH.ExpectedInputVSize(), InputTypeP2PKH.ExpectedInputVSize())
}
