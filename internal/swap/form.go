package swap

import (
	"net/url"
	"strconv"

	"moff.io/moff-wallet/internal/chains"
)

type SwapMode string

const (
	ExactIn  SwapMode = "ExactIn"
	ExactOut SwapMode = "ExactOut"

	defaultTokenDecimals = 18
)

// Form is what the user filled in, amounts are human readable decimals.
type Form struct {
	SrcToken           string   `json:"srcToken"`
	DestToken          string   `json:"destToken"`
	SrcChain           string   `json:"srcChain"`
	DestChain          string   `json:"destChain"`
	SrcDecimals        int      `json:"srcDecimals"`
	DestDecimals       int      `json:"destDecimals"`
	SrcIsNative        bool     `json:"srcIsNative"`
	FromValue          string   `json:"fromValue"`
	ToValue            string   `json:"toValue"`
	SlippageBps        int      `json:"slippageBps"`
	SwapMode           SwapMode `json:"swapMode"`
	WalletAddress      string   `json:"walletAddress"`
	DestinationAddress string   `json:"destinationAddress"`
}

type QuoteParams struct {
	SrcToken           string   `json:"srcToken"`
	DestToken          string   `json:"destToken"`
	WalletAddress      string   `json:"walletAddress"`
	Amount             string   `json:"amount"`
	SrcChainID         string   `json:"srcChainId"`
	DestChainID        string   `json:"destChainId"`
	Slippage           int      `json:"slippage"`
	SwapMode           SwapMode `json:"swapMode"`
	DestinationAddress string   `json:"destinationAddress"`
}

func (p QuoteParams) Values() url.Values {
	val := url.Values{}
	val.Set("srcToken", p.SrcToken)
	val.Set("destToken", p.DestToken)
	val.Set("walletAddress", p.WalletAddress)
	val.Set("amount", p.Amount)
	val.Set("srcChainId", p.SrcChainID)
	val.Set("destChainId", p.DestChainID)
	val.Set("slippage", strconv.Itoa(p.Slippage))
	val.Set("swapMode", string(p.SwapMode))
	val.Set("destinationAddress", p.DestinationAddress)
	return val
}

func (f Form) Mode() SwapMode {
	if f.SwapMode == ExactOut {
		return ExactOut
	}
	return ExactIn
}

func (f Form) IsMultiChain() bool {
	return chains.IsMultiChainSwap(f.SrcChain, f.DestChain)
}

// QuoteParams converts the form for the quote api. The amount is the side the user typed, in base units, and
// slippage goes out in tenths of a basis point.
func (f Form) QuoteParams(defaultSlippageBps int) (QuoteParams, error) {
	mode := f.Mode()
	value, decimals := f.FromValue, f.SrcDecimals
	if mode == ExactOut {
		value, decimals = f.ToValue, f.DestDecimals
	}
	if decimals <= 0 {
		decimals = defaultTokenDecimals
	}
	amount := "0"
	if HasNumericValue(value) {
		n, err := ParseUnits(value, decimals)
		if err != nil {
			return QuoteParams{}, err
		}
		amount = n.String()
	}
	slippage := f.SlippageBps
	if slippage == 0 {
		slippage = defaultSlippageBps
	}
	params := QuoteParams{
		SrcToken:      f.SrcToken,
		DestToken:     f.DestToken,
		WalletAddress: f.WalletAddress,
		Amount:        amount,
		SrcChainID:    f.SrcChain,
		DestChainID:   f.DestChain,
		Slippage:      slippage * 10,
		SwapMode:      mode,
	}
	if f.IsMultiChain() {
		params.DestinationAddress = f.DestinationAddress
	}
	return params, nil
}
