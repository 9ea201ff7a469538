package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"moff.io/moff-wallet/internal/keystore"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/internal/swap"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/middleware"
)

type AccountRegistry interface {
	walletconnect.AccountStore
	Import(ctx context.Context, state walletconnect.AccountState, label string) error
	Remember(ctx context.Context, state walletconnect.AccountState, label string) error
}

type ProfileWriter interface {
	SaveProfile(ctx context.Context, address string, profile ledger.Profile) error
}

type MnemonicStore interface {
	Put(ctx context.Context, pubKey, mnemonic string) error
}

type Server struct {
	WalletConnect *walletconnect.Service
	Scanner       *ledger.Scanner
	Pairer        *ledger.Pairer
	Swap          *swap.Service
	Accounts      AccountRegistry
	Profiles      ProfileWriter
	Mnemonics     MnemonicStore
	Signers       walletconnect.SignerResolver
	// PairingLimiter throttles the pairing endpoints, nil disables it.
	PairingLimiter Limiter
	RequestTimeout time.Duration
	CoinType       uint32
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog())
	if s.RequestTimeout > 0 {
		router.Use(middleware.TimeoutHTTP(s.RequestTimeout))
	}

	router.GET("/hello", func(ctx *gin.Context) {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"hello":   "world",
			"pairing": s.WalletConnect.PairingState().String(),
		})
	})

	wc := router.Group("/walletconnect")
	pairing := wc.Group("/uri", rateLimit(s.PairingLimiter, "pairing"))
	pairing.POST("", s.pairURI)
	pairing.POST("/validate", s.validateURI)
	pairing.GET("/qr", s.uriQRCode)
	wc.GET("/proposals", s.listProposals)
	wc.POST("/proposals/:id/approve", s.approveProposal)
	wc.GET("/sessions", s.listSessions)
	wc.DELETE("/sessions/:topic", s.disconnectSession)
	wc.DELETE("/sessions", s.disconnectAll)
	wc.GET("/requests", s.listRequests)
	wc.POST("/requests/:id/approve", s.approveRequest)
	wc.POST("/requests/:id/reject", s.rejectRequest)
	wc.POST("/client/reset", s.resetClient)

	router.GET("/ledger/devices", s.listDevices)
	router.POST("/ledger/devices/reload", s.reloadDevices)
	router.POST("/ledger/pair", s.pairLedger)

	router.POST("/accounts/import", s.importAccount)
	router.POST("/profiles", s.saveProfile)

	router.POST("/swap/quote", s.swapQuote)
	router.POST("/swap/fee", s.swapFee)
	router.POST("/swap/submit", s.swapSubmit)
	router.GET("/swap/status", s.swapStatus)
	router.POST("/swap/solana/prepare", s.swapPrepareSolana)
	return router
}

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

func ok(ctx *gin.Context, data interface{}) {
	ctx.JSONP(http.StatusOK, data)
}

func fail(ctx *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%v %v: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
	}
	ctx.AbortWithStatusJSON(status, map[string]interface{}{
		"error": err.Error(),
	})
}

func badRequest(ctx *gin.Context, err error) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, map[string]interface{}{
		"error": err.Error(),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, walletconnect.ErrInvalidURI),
		errors.Is(err, walletconnect.ErrUnsupportedVersion),
		errors.Is(err, swap.ErrInvalidAmount),
		errors.Is(err, swap.ErrChainNotSupported),
		errors.Is(err, swap.ErrInvalidCalldata):
		return http.StatusBadRequest
	case errors.Is(err, walletconnect.ErrProposalNotFound),
		errors.Is(err, walletconnect.ErrRequestNotFound),
		errors.Is(err, walletconnect.ErrSessionNotFound),
		errors.Is(err, walletconnect.ErrAccountNotFound),
		errors.Is(err, ledger.ErrDeviceNotFound),
		errors.Is(err, keystore.ErrCredentialsNotFound):
		return http.StatusNotFound
	case errors.Is(err, walletconnect.ErrPairingInProgress):
		return http.StatusConflict
	case errors.Is(err, walletconnect.ErrNoSupportedNamespaces),
		errors.Is(err, swap.ErrNoRoute),
		errors.Is(err, swap.ErrSimulationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrTransport):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
