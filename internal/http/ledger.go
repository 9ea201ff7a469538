package http

import (
	"github.com/gin-gonic/gin"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/log"
)

func (s *Server) listDevices(ctx *gin.Context) {
	resp := map[string]interface{}{
		"devices": s.Scanner.Devices(),
	}
	if err := s.Scanner.LastError(); err != nil {
		resp["error"] = err.Error()
	}
	ok(ctx, resp)
}

func (s *Server) reloadDevices(ctx *gin.Context) {
	if err := s.Scanner.Reload(ctx.Request.Context()); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{
		"devices": s.Scanner.Devices(),
	})
}

type pairLedgerRequest struct {
	// DeviceID defaults to the first discovered device.
	DeviceID string `json:"deviceId"`
	// ChainID, when set, stores the ledger account for that chain.
	ChainID string `json:"chainId"`
	Label   string `json:"label"`
}

func (s *Server) pairLedger(ctx *gin.Context) {
	var req pairLedgerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	var (
		device ledger.Device
		err    error
	)
	if req.DeviceID == "" {
		device, err = s.Scanner.First()
	} else {
		device, err = s.Scanner.Device(req.DeviceID)
	}
	if err != nil {
		fail(ctx, err)
		return
	}
	result, err := s.Pairer.Pair(ctx.Request.Context(), device)
	if err != nil {
		fail(ctx, err)
		return
	}
	if req.ChainID != "" && s.Accounts != nil {
		state := walletconnect.AccountState{
			Address:  result.Address,
			PubKey:   result.PubKey,
			ChainID:  req.ChainID,
			Prefix:   s.Pairer.HRP,
			IsLedger: true,
		}
		if err := s.Accounts.Remember(ctx.Request.Context(), state, req.Label); err != nil {
			log.Errorf("remember ledger account %v: %v", result.Address, err)
		}
	}
	ok(ctx, result)
}
