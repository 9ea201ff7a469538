package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

type uriRequest struct {
	URI string `json:"uri" binding:"required"`
	// Wait pairs within the request instead of in the background.
	Wait bool `json:"wait"`
}

func (s *Server) pairURI(ctx *gin.Context) {
	var req uriRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !req.Wait {
		ok(ctx, map[string]interface{}{
			"accepted": s.WalletConnect.HandleURI(ctx.Request.Context(), req.URI),
		})
		return
	}
	if err := s.WalletConnect.PairURI(ctx.Request.Context(), req.URI); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{
		"accepted":  true,
		"proposals": s.WalletConnect.PendingProposals(),
	})
}

func (s *Server) validateURI(ctx *gin.Context) {
	var req uriRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	valid := walletconnect.ValidateURI(req.URI)
	resp := map[string]interface{}{"valid": valid, "supported": false}
	if valid {
		parsed := walletconnect.ParseURI(req.URI)
		resp["topic"] = parsed.Bridge
		resp["version"] = parsed.Version
		// a valid uri of another version still fails to pair
		resp["supported"] = s.WalletConnect.Supports(parsed)
	}
	ok(ctx, resp)
}

// uriQRCode renders a pairing uri as png, for a second device to scan.
func (s *Server) uriQRCode(ctx *gin.Context) {
	uri := ctx.Query("uri")
	if !walletconnect.ValidateURI(uri) {
		fail(ctx, walletconnect.ErrInvalidURI)
		return
	}
	size := defaultQRSize
	if v := ctx.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxQRSize {
			badRequest(ctx, errors.Errorf("size must be within 1 and %d", maxQRSize))
			return
		}
		size = n
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		fail(ctx, errors.WrapAndReport(err, "encode qrcode"))
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (s *Server) listProposals(ctx *gin.Context) {
	ok(ctx, map[string]interface{}{
		"proposals": s.WalletConnect.PendingProposals(),
	})
}

func (s *Server) approveProposal(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		badRequest(ctx, errors.Errorf("invalid proposal id %q", ctx.Param("id")))
		return
	}
	session, err := s.WalletConnect.ApproveProposalByID(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, session)
}

func (s *Server) listSessions(ctx *gin.Context) {
	ok(ctx, map[string]interface{}{
		"sessions": s.WalletConnect.ActiveSessions(),
	})
}

func (s *Server) disconnectSession(ctx *gin.Context) {
	if err := s.WalletConnect.Disconnect(ctx.Request.Context(), ctx.Param("topic")); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{"success": true})
}

func (s *Server) disconnectAll(ctx *gin.Context) {
	s.WalletConnect.DisconnectAll(ctx.Request.Context())
	ok(ctx, map[string]interface{}{"success": true})
}

// resetClient drops the live pairing client and its parked requests, for a bridge that stopped answering.
func (s *Server) resetClient(ctx *gin.Context) {
	if err := s.WalletConnect.Recreate(ctx.Request.Context()); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{
		"success": true,
		"pairing": s.WalletConnect.PairingState().String(),
	})
}

func (s *Server) listRequests(ctx *gin.Context) {
	ok(ctx, map[string]interface{}{
		"requests": s.WalletConnect.PendingRequests(),
	})
}

func requestID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		badRequest(ctx, errors.Errorf("invalid request id %q", ctx.Param("id")))
		return 0, false
	}
	return id, true
}

// approveRequest signs a parked request. The dapp is answered either way, a signing failure also fails the call.
func (s *Server) approveRequest(ctx *gin.Context) {
	id, valid := requestID(ctx)
	if !valid {
		return
	}
	if err := s.WalletConnect.ApproveRequest(ctx.Request.Context(), id); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{"success": true})
}

func (s *Server) rejectRequest(ctx *gin.Context) {
	id, valid := requestID(ctx)
	if !valid {
		return
	}
	if err := s.WalletConnect.RejectRequest(ctx.Request.Context(), id); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, map[string]interface{}{"success": true})
}
