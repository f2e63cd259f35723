package payjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// InputType classifies a PSBT input's spending script so the pipeline can
// enforce script-type uniformity across all inputs (§4.4) and estimate the
// weight a contributed input of that type would add (§4.9).
type InputType int

const (
	InputTypeUnknown InputType = iota
	InputTypeP2PKH
	InputTypeP2SH
	InputTypeP2SHP2WPKH
	InputTypeP2SHP2WSH
	InputTypeP2WPKH
	InputTypeP2WSH
	InputTypeP2TR
)

func (t InputType) String() string {
	switch t {
	case InputTypeP2PKH:
		return "p2pkh"
	case InputTypeP2SH:
		return "p2sh"
	case InputTypeP2SHP2WPKH:
		return "p2sh-p2wpkh"
	case InputTypeP2SHP2WSH:
		return "p2sh-p2wsh"
	case InputTypeP2WPKH:
		return "p2wpkh"
	case InputTypeP2WSH:
		return "p2wsh"
	case InputTypeP2TR:
		return "p2tr"
	default:
		return "unknown"
	}
}

// ExpectedInputVSize is the conservative single-signature vsize (in vbytes)
// of a spend of this input type, used to size the additional fee a
// contributed input demands. Values follow the commonly used worst-case
// estimates for single-key spends (outpoint 36B + sequence 4B + length
// prefixes + unlocking data, segwit portion discounted by 4).
func (t InputType) ExpectedInputVSize() int64 {
	switch t {
	case InputTypeP2PKH:
		return 148
	case InputTypeP2SHP2WPKH:
		return 91
	case InputTypeP2WPKH:
		return 68
	case InputTypeP2SHP2WSH:
		return 106
	case InputTypeP2WSH:
		return 104
	case InputTypeP2TR:
		return 58
	case InputTypeP2SH:
		return 297 // bare P2SH, sized for a conservative 2-of-3 multisig spend
	default:
		return 0
	}
}

// classifyInputType determines the InputType of an input given its previous
// output's script and whatever redeem/witness data the PSBT already carries
// for it. A bare P2SH input whose redeem script is itself a witness program
// is reclassified as the nested-segwit type it wraps.
func classifyInputType(pkScript []byte, pin *psbt.PInput) (InputType, error) {
	class := txscript.GetScriptClass(pkScript)
	switch class {
	case txscript.PubKeyHashTy:
		return InputTypeP2PKH, nil
	case txscript.WitnessV0PubKeyHashTy:
		return InputTypeP2WPKH, nil
	case txscript.WitnessV0ScriptHashTy:
		return InputTypeP2WSH, nil
	case txscript.WitnessV1TaprootTy:
		return InputTypeP2TR, nil
	case txscript.ScriptHashTy:
		if len(pin.RedeemScript) == 0 {
			return InputTypeP2SH, nil
		}
		switch txscript.GetScriptClass(pin.RedeemScript) {
		case txscript.WitnessV0PubKeyHashTy:
			return InputTypeP2SHP2WPKH, nil
		case txscript.WitnessV0ScriptHashTy:
			return InputTypeP2SHP2WSH, nil
		default:
			return InputTypeP2SH, nil
		}
	default:
		return InputTypeUnknown, fmt.Errorf("unsupported input script class %s", class)
	}
}
