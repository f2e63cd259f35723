package bitcoin

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
)

// ListAllUnspent returns every UTXO with at least one confirmation known to
// the wallet, not filtered to a particular address set, as the candidate pool
// for WantsInputs.TryPreservingPrivacy. Non-spendable entries are included;
// callers filter on Spendable.
func (c *Client) ListAllUnspent() ([]btcjson.ListUnspentResult, error) {
	if c.WalletRPC != nil {
		return c.WalletRPC.ListUnspentMin(1)
	}
	return c.RPC.ListUnspentMin(1)
}

// TestMempoolAccept reports whether rawTxHex would currently be accepted
// into the node's mempool, without actually broadcasting it. Used as the
// can_broadcast callback for payjoin's broadcast-suitability check.
func (c *Client) TestMempoolAccept(rawTxHex string) (bool, error) {
	params := []interface{}{[]string{rawTxHex}}
	rawParams := make([]json.RawMessage, len(params))
	for i, v := range params {
		marshaled, err := json.Marshal(v)
		if err != nil {
			return false, err
		}
		rawParams[i] = marshaled
	}

	rawResp, err := c.RPC.RawRequest("testmempoolaccept", rawParams)
	if err != nil {
		return false, err
	}

	var results []struct {
		Allowed    bool   `json:"allowed"`
		RejectMsg  string `json:"reject-reason"`
		RejectCode string `json:"package-error"`
	}
	if err := json.Unmarshal(rawResp, &results); err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, fmt.Errorf("testmempoolaccept: empty response")
	}
	return results[0].Allowed, nil
}

// GetAddressInfo resolves whether address is owned ("ismine") by the
// watch-enabled wallet. Used as the is_owned / is_receiver_output callback.
func (c *Client) GetAddressInfo(address string) (isMine bool, err error) {
	client := c.RPC
	if c.WalletRPC != nil {
		client = c.WalletRPC
	}

	addrParam, err := json.Marshal(address)
	if err != nil {
		return false, err
	}

	rawResp, err := client.RawRequest("getaddressinfo", []json.RawMessage{addrParam})
	if err != nil {
		return false, err
	}

	var info struct {
		IsMine bool `json:"ismine"`
	}
	if err := json.Unmarshal(rawResp, &info); err != nil {
		return false, err
	}
	return info.IsMine, nil
}

// GetNewAddress asks the wallet for a fresh address of the given output
// type ("bech32", "p2sh-segwit", "legacy", or "" for the wallet default).
// Used both as the generate_script callback for output substitution and to
// build BIP-21 URIs.
func (c *Client) GetNewAddress(addressType string) (string, error) {
	client := c.RPC
	if c.WalletRPC != nil {
		client = c.WalletRPC
	}

	params := []interface{}{""}
	if addressType != "" {
		params = append(params, addressType)
	}
	rawParams := make([]json.RawMessage, len(params))
	for i, v := range params {
		marshaled, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		rawParams[i] = marshaled
	}

	rawResp, err := client.RawRequest("getnewaddress", rawParams)
	if err != nil {
		return "", err
	}

	var address string
	if err := json.Unmarshal(rawResp, &address); err != nil {
		return "", err
	}
	return address, nil
}

// WalletProcessPSBT asks the wallet to sign every input it can in a base64
// PSBT (sign=true, sighash ALL, bip32derivs=false). finalize is left at the
// node's default, so the inputs the wallet completes come back finalized;
// sender inputs it cannot sign are left for the sender. Used as the
// wallet_process_psbt callback for ProvisionalProposal.FinalizeProposal.
func (c *Client) WalletProcessPSBT(psbtB64 string) (string, error) {
	client := c.RPC
	if c.WalletRPC != nil {
		client = c.WalletRPC
	}

	params := []interface{}{psbtB64, true, "ALL", false}
	rawParams := make([]json.RawMessage, len(params))
	for i, v := range params {
		marshaled, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		rawParams[i] = marshaled
	}

	rawResp, err := client.RawRequest("walletprocesspsbt", rawParams)
	if err != nil {
		return "", err
	}

	var result struct {
		Psbt     string `json:"psbt"`
		Complete bool   `json:"complete"`
	}
	if err := json.Unmarshal(rawResp, &result); err != nil {
		return "", err
	}
	return result.Psbt, nil
}
