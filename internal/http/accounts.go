package http

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/internal/database"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

type importAccountRequest struct {
	Mnemonic string `json:"mnemonic" binding:"required"`
	ChainID  string `json:"chainId" binding:"required"`
	Prefix   string `json:"prefix" binding:"required"`
	Label    string `json:"label"`
}

// importAccount keeps the mnemonic in the keystore and registers the derived account.
func (s *Server) importAccount(ctx *gin.Context) {
	var req importAccountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	signer, err := cosmos.NewMnemonicSigner(req.Mnemonic, cosmos.HDPath(s.CoinType, 0), req.Prefix)
	if err != nil {
		if errors.Is(err, cosmos.ErrInvalidMnemonic) {
			badRequest(ctx, err)
			return
		}
		fail(ctx, err)
		return
	}
	state := walletconnect.AccountState{
		Address: signer.Address(),
		PubKey:  hex.EncodeToString(signer.PubKey()),
		ChainID: req.ChainID,
		Prefix:  req.Prefix,
	}
	if err := s.Mnemonics.Put(ctx.Request.Context(), state.PubKey, req.Mnemonic); err != nil {
		fail(ctx, err)
		return
	}
	if err := s.Accounts.Import(ctx.Request.Context(), state, req.Label); err != nil {
		if database.IsDuplicateKeyErr(err) {
			ctx.AbortWithStatusJSON(http.StatusConflict, map[string]interface{}{
				"error": "account already imported",
			})
			return
		}
		fail(ctx, err)
		return
	}
	ok(ctx, state)
}

type saveProfileRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Avatar  string `json:"avatar"`
}

func (s *Server) saveProfile(ctx *gin.Context) {
	var req saveProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	profile := ledger.Profile{Name: req.Name, Avatar: req.Avatar}
	if err := s.Profiles.SaveProfile(ctx.Request.Context(), req.Address, profile); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, profile)
}
