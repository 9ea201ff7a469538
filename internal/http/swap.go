package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"moff.io/moff-wallet/internal/swap"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

type quoteResponse struct {
	*swap.Quote
	FromValue string `json:"fromValue"`
	ToValue   string `json:"toValue"`
}

// swapQuote fills in the side of the form the user left open.
func (s *Server) swapQuote(ctx *gin.Context) {
	var form swap.Form
	if err := ctx.ShouldBindJSON(&form); err != nil {
		badRequest(ctx, err)
		return
	}
	quote, err := s.Swap.Quote(ctx.Request.Context(), form)
	if err != nil {
		fail(ctx, err)
		return
	}
	resp := quoteResponse{Quote: quote, FromValue: form.FromValue, ToValue: form.ToValue}
	if form.Mode() == swap.ExactOut {
		resp.FromValue = quote.InputAmount.Format(form.SrcDecimals)
	} else {
		resp.ToValue = quote.OutputAmount.Format(form.DestDecimals)
	}
	ok(ctx, resp)
}

func (s *Server) swapFee(ctx *gin.Context) {
	var form swap.Form
	if err := ctx.ShouldBindJSON(&form); err != nil {
		badRequest(ctx, err)
		return
	}
	quote, err := s.Swap.Quote(ctx.Request.Context(), form)
	if err != nil {
		fail(ctx, err)
		return
	}
	fee, err := s.Swap.EstimateFee(ctx.Request.Context(), form, quote)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{
		"transactionFee": fee,
	})
}

// swapSubmit quotes again so the calldata is fresh, then signs with the wallet's own key.
func (s *Server) swapSubmit(ctx *gin.Context) {
	var form swap.Form
	if err := ctx.ShouldBindJSON(&form); err != nil {
		badRequest(ctx, err)
		return
	}
	account, err := s.accountByAddress(ctx, form.WalletAddress)
	if err != nil {
		fail(ctx, err)
		return
	}
	key, err := s.Signers.EVMKey(ctx.Request.Context(), account)
	if err != nil {
		fail(ctx, err)
		return
	}
	quote, err := s.Swap.Quote(ctx.Request.Context(), form)
	if err != nil {
		fail(ctx, err)
		return
	}
	status, err := s.Swap.SubmitEVM(ctx.Request.Context(), form, quote, key)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, status)
}

func (s *Server) accountByAddress(ctx *gin.Context, address string) (walletconnect.AccountState, error) {
	states, err := s.Accounts.Accounts(ctx.Request.Context())
	if err != nil {
		return walletconnect.AccountState{}, err
	}
	for _, state := range states {
		if strings.EqualFold(state.Address, address) {
			return state, nil
		}
	}
	return walletconnect.AccountState{}, errors.Wrapf(walletconnect.ErrAccountNotFound, "%s", address)
}

func (s *Server) swapStatus(ctx *gin.Context) {
	chainID, txID := ctx.Query("chain"), ctx.Query("txid")
	if chainID == "" || txID == "" {
		badRequest(ctx, errors.New("chain and txid are required"))
		return
	}
	status, err := s.Swap.TxStatus(ctx.Request.Context(), chainID, txID)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, status)
}

type prepareSolanaRequest struct {
	Form swap.Form `json:"form"`
	// PriorityFee is in SOL.
	PriorityFee float64 `json:"priorityFee"`
}

func (s *Server) swapPrepareSolana(ctx *gin.Context) {
	var req prepareSolanaRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	quote, err := s.Swap.Quote(ctx.Request.Context(), req.Form)
	if err != nil {
		fail(ctx, err)
		return
	}
	prepared, err := s.Swap.PrepareSolana(ctx.Request.Context(), quote, req.PriorityFee)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, prepared)
}
