package api

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rawblock/payjoin-engine/internal/db"
	"github.com/rawblock/payjoin-engine/internal/payjoin"
)

// ginHeaders adapts gin's request headers to payjoin.Headers without this
// package's core engine ever importing an HTTP framework.
type ginHeaders struct{ header http.Header }

func (h ginHeaders) Get(key string) (string, bool) {
	v := h.header.Get(key)
	if v == "" {
		return "", false
	}
	return v, true
}

// handlePayjoinReceive is the BIP-78 receive endpoint: POST /api/v1/payjoin.
// It drives the full typestate pipeline, wiring each check to the engine's
// Bitcoin Core RPC client and Postgres-backed seen-inputs store.
func (h *APIHandler) handlePayjoinReceive(c *gin.Context) {
	correlationID := uuid.NewString()
	ctx := c.Request.Context()

	proposal, err := payjoin.FromRequest(c.Request.Body, c.Request.URL.RawQuery, ginHeaders{c.Request.Header})
	if err != nil {
		h.respondPayjoinError(c, correlationID, err)
		return
	}

	scheduledTx := proposal.ExtractTxToScheduleBroadcast()
	if h.dbStore != nil {
		_ = h.dbStore.SaveProposal(ctx, db.ProposalRecord{
			CorrelationID: correlationID,
			Status:        "scheduled",
			Txid:          scheduledTx.TxHash().String(),
		})
	}

	var maybeOwned *payjoin.MaybeInputsOwned
	if h.nonInteractive {
		var minRate *payjoin.FeeRate
		if h.minFeeRateSatVB > 0 {
			rate := payjoin.FeeRate(h.minFeeRateSatVB)
			minRate = &rate
		}
		maybeOwned, err = proposal.CheckBroadcastSuitability(minRate, func(tx *wire.MsgTx) (bool, error) {
			rawHex, err := txHex(tx)
			if err != nil {
				return false, err
			}
			return h.btcClient.TestMempoolAccept(rawHex)
		})
	} else {
		maybeOwned = proposal.AssumeInteractiveReceiver()
	}
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	maybeMixed, err := maybeOwned.CheckInputsNotOwned(h.isOwned)
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	maybeSeen, err := maybeMixed.CheckNoMixedInputScripts()
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	outputsUnknown, err := maybeSeen.CheckNoInputsSeenBefore(func(op wire.OutPoint) (bool, error) {
		if h.dbStore == nil {
			return false, nil
		}
		return h.dbStore.InsertSeenOutpoint(ctx, op.Hash.String(), op.Index)
	})
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	wantsOutputs, err := outputsUnknown.IdentifyReceiverOutputs(h.isOwned)
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	wantsInputs, err := wantsOutputs.TrySubstituteReceiverOutput(func() ([]byte, error) {
		addr, err := h.btcClient.GetNewAddress("bech32")
		if err != nil {
			return nil, err
		}
		decoded, err := btcutil.DecodeAddress(addr, h.network)
		if err != nil {
			return nil, err
		}
		return txscript.PayToAddrScript(decoded)
	})
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	provisional, contributed, err := h.tryContributeInputs(wantsInputs)
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	var minRate *payjoin.FeeRate
	if h.minFeeRateSatVB > 0 {
		rate := payjoin.FeeRate(h.minFeeRateSatVB)
		minRate = &rate
	}
	finalProposal, err := provisional.FinalizeProposal(func(pkt *psbt.Packet) (*psbt.Packet, error) {
		return h.walletProcessPsbt(pkt)
	}, minRate)
	if err != nil {
		h.rejectProposal(c, correlationID, err)
		return
	}

	var buf bytes.Buffer
	if err := finalProposal.Psbt().Serialize(&buf); err != nil {
		h.rejectProposal(c, correlationID, payjoin.ServerError(err))
		return
	}
	body := base64.StdEncoding.EncodeToString(buf.Bytes())

	if h.dbStore != nil {
		_ = h.dbStore.SaveProposal(ctx, db.ProposalRecord{
			CorrelationID:     correlationID,
			Status:            "finalized",
			Txid:              finalProposal.Psbt().UnsignedTx.TxHash().String(),
			ContributedInputs: boolToInt(contributed),
		})
	}
	if h.wsHub != nil {
		h.wsHub.Broadcast([]byte(fmt.Sprintf(`{"type":"payjoin_finalized","correlationId":%q}`, correlationID)))
	}

	c.Header("Content-Type", "text/plain")
	c.String(http.StatusOK, body)
}

// isOwned resolves pkScript to an address on the configured network and asks
// the wallet whether it controls it. A script that doesn't decode to a valid
// address for this network is treated as not owned, not as an error —
// matches the reference implementation's fallback behavior.
func (h *APIHandler) isOwned(pkScript []byte) (bool, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, h.network)
	if err != nil || len(addrs) != 1 {
		return false, nil
	}
	return h.btcClient.GetAddressInfo(addrs[0].EncodeAddress())
}

// tryContributeInputs attempts to add one of the receiver's own UTXOs to the
// payjoin transaction. Failure to find a suitable candidate is logged and
// swallowed: the proposal still completes, just without the privacy benefit
// a contributed input would have added.
func (h *APIHandler) tryContributeInputs(w *payjoin.WantsInputs) (*payjoin.ProvisionalProposal, bool, error) {
	unspent, err := h.btcClient.ListAllUnspent()
	if err != nil {
		log.Printf("payjoin: could not list unspent outputs: %v", err)
		return noContribution(w)
	}

	candidates := make(map[btcutil.Amount]wire.OutPoint, len(unspent))
	byOutpoint := make(map[wire.OutPoint]struct {
		value    int64
		pkScript []byte
	}, len(unspent))
	for _, u := range unspent {
		if !u.Spendable {
			continue
		}
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			continue
		}
		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			continue
		}
		pkScript, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			continue
		}
		op := wire.OutPoint{Hash: *hash, Index: u.Vout}
		candidates[amt] = op
		byOutpoint[op] = struct {
			value    int64
			pkScript []byte
		}{value: int64(amt), pkScript: pkScript}
	}

	picked, err := w.TryPreservingPrivacy(candidates)
	if err != nil {
		log.Printf("could not select a privacy-preserving input to contribute: %v", err)
		return noContribution(w)
	}

	op := picked[0]
	info, ok := byOutpoint[op]
	if !ok {
		log.Printf("selected outpoint %s missing from candidate set", op)
		return noContribution(w)
	}

	provisional, err := w.ContributeWitnessInput(wire.NewTxOut(info.value, info.pkScript), op)
	if err != nil {
		return nil, false, err
	}
	return provisional, true, nil
}

func noContribution(w *payjoin.WantsInputs) (*payjoin.ProvisionalProposal, bool, error) {
	return w.SkipContribution(), false, nil
}

func (h *APIHandler) walletProcessPsbt(pkt *psbt.Packet) (*psbt.Packet, error) {
	var buf bytes.Buffer
	if err := pkt.Serialize(&buf); err != nil {
		return nil, err
	}
	b64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	signed, err := h.btcClient.WalletProcessPSBT(b64)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(signed)
	if err != nil {
		return nil, err
	}
	return psbt.NewFromRawBytes(bytes.NewReader(decoded), false)
}

func (h *APIHandler) respondPayjoinError(c *gin.Context, correlationID string, err error) {
	var pjErr *payjoin.Error
	if e, ok := err.(*payjoin.Error); ok {
		pjErr = e
	} else {
		pjErr = &payjoin.Error{Server: err}
	}
	c.JSON(pjErr.HTTPStatus(), gin.H{"error": pjErr.Error(), "correlationId": correlationID})
}

func (h *APIHandler) rejectProposal(c *gin.Context, correlationID string, err error) {
	if h.dbStore != nil {
		_ = h.dbStore.SaveProposal(c.Request.Context(), db.ProposalRecord{
			CorrelationID: correlationID,
			Status:        "rejected",
			RejectReason:  err.Error(),
		})
	}
	if h.wsHub != nil {
		h.wsHub.Broadcast([]byte(fmt.Sprintf(`{"type":"payjoin_rejected","correlationId":%q,"reason":%q}`, correlationID, err.Error())))
	}
	h.respondPayjoinError(c, correlationID, err)
}

// handleBip21 builds a bitcoin: URI for a fresh receiver address, the
// sender-facing entry point into a payjoin flow (§1's "BIP-21 URI
// construction helpers").
func (h *APIHandler) handleBip21(c *gin.Context) {
	amountBTC := c.Query("amount")

	addr, err := h.btcClient.GetNewAddress("bech32")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate address", "details": err.Error()})
		return
	}

	uri := fmt.Sprintf("bitcoin:%s?pj=%s", addr, h.endpoint)
	if amountBTC != "" {
		uri = fmt.Sprintf("bitcoin:%s?amount=%s&pj=%s", addr, amountBTC, h.endpoint)
	}

	c.JSON(http.StatusOK, gin.H{"uri": uri, "address": addr})
}

func txHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
