package payjoin

import (
	"math"
	"net/url"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// FeeRate is expressed in satoshis per vbyte, the unit the rest of this
// codebase's Bitcoin Core client already uses for fee estimates.
type FeeRate float64

// Fee returns the fee, in satoshis, of spending vsize vbytes at this rate.
func (r FeeRate) Fee(vsize int64) btcutil.Amount {
	return btcutil.Amount(int64(math.Ceil(float64(r) * float64(vsize))))
}

// SenderParams holds the query-string parameters BIP-78 defines for the
// sender's POST request.
type SenderParams struct {
	Version int

	HasAdditionalFee             bool
	AdditionalFeeOutputIndex     int
	MaxAdditionalFeeContribution btcutil.Amount

	HasMinFeeRate bool
	MinFeeRate    FeeRate

	DisableOutputSubstitution bool
}

// parseSenderParams parses the BIP-78 query parameters. additionalfeeoutputindex
// and maxadditionalfeecontribution must both be present or both be absent.
func parseSenderParams(values url.Values) (SenderParams, error) {
	var p SenderParams

	v := values.Get("v")
	if v == "" {
		p.Version = 1
	} else {
		version, err := strconv.Atoi(v)
		if err != nil {
			return p, BadRequest(TagSenderParams, "invalid v parameter: %v", err)
		}
		if version != 1 {
			return p, BadRequest(TagUnsupportedVersion, "unsupported payjoin version %d", version)
		}
		p.Version = version
	}

	idxStr := values.Get("additionalfeeoutputindex")
	feeStr := values.Get("maxadditionalfeecontribution")
	switch {
	case idxStr == "" && feeStr == "":
		// sender declares no willingness to contribute to the fee.
	case idxStr == "" || feeStr == "":
		return p, BadRequest(TagSenderParams, "additionalfeeoutputindex and maxadditionalfeecontribution must both be set or both omitted")
	default:
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return p, BadRequest(TagSenderParams, "invalid additionalfeeoutputindex: %q", idxStr)
		}
		feeSat, err := strconv.ParseInt(feeStr, 10, 64)
		if err != nil || feeSat < 0 {
			return p, BadRequest(TagSenderParams, "invalid maxadditionalfeecontribution: %q", feeStr)
		}
		p.HasAdditionalFee = true
		p.AdditionalFeeOutputIndex = idx
		p.MaxAdditionalFeeContribution = btcutil.Amount(feeSat)
	}

	if rateStr := values.Get("minfeerate"); rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil || rate < 0 {
			return p, BadRequest(TagSenderParams, "invalid minfeerate: %q", rateStr)
		}
		p.HasMinFeeRate = true
		p.MinFeeRate = FeeRate(rate)
	}

	p.DisableOutputSubstitution = values.Get("disableoutputsubstitution") == "true"

	return p, nil
}
