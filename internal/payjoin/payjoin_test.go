package payjoin

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// headerMap adapts a plain http.Header to the Headers interface the
// pipeline expects, the same shape a gin.Context wrapper would have.
type headerMap http.Header

func (h headerMap) Get(key string) (string, bool) {
	v := http.Header(h).Get(key)
	if v == "" {
		return "", false
	}
	return v, true
}

// p2wpkhScript builds a minimal valid-looking P2WPKH scriptPubKey from a
// deterministic 20-byte filler, enough to satisfy txscript.GetScriptClass
// without needing a real key.
func p2wpkhScript(fill byte) []byte {
	hash := bytes.Repeat([]byte{fill}, 20)
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(hash).Script()
	if err != nil {
		panic(err)
	}
	return script
}

func outpoint(txidByte byte, index uint32) wire.OutPoint {
	var hash chainhash.Hash
	hash[0] = txidByte
	return *wire.NewOutPoint(&hash, index)
}

// buildOriginalPsbt constructs a one-input, two-output Original PSBT: one
// sender input, one payment to the receiver, one sender change output.
func buildOriginalPsbt(t *testing.T, inputValue, paymentValue, changeValue int64) *psbt.Packet {
	t.Helper()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint(0xAA, 0), Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(wire.NewTxOut(paymentValue, p2wpkhScript(0x01))) // receiver
	tx.AddTxOut(wire.NewTxOut(changeValue, p2wpkhScript(0x02)))  // sender change

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("NewFromUnsignedTx: %v", err)
	}
	pkt.Inputs[0].WitnessUtxo = wire.NewTxOut(inputValue, p2wpkhScript(0xAA))
	return pkt
}

func psbtBody(t *testing.T, pkt *psbt.Packet) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	if err := pkt.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	b64 := base64.StdEncoding.EncodeToString(buf.Bytes())
	return []byte(b64), b64
}

func fromRequestOK(t *testing.T, pkt *psbt.Packet, query string) *UncheckedProposal {
	t.Helper()
	raw, b64 := psbtBody(t, pkt)
	_ = raw
	headers := headerMap{
		"Content-Type":   []string{"text/plain"},
		"Content-Length": []string{strconv.Itoa(len(b64))},
	}
	proposal, err := FromRequest(bytes.NewReader([]byte(b64)), query, headers)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	return proposal
}
