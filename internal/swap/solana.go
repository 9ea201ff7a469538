package swap

import (
	"context"
	"math"

	"moff.io/moff-wallet/internal/solana"
	"moff.io/moff-wallet/pkg/errors"
)

// Priority fees in SOL on top of the base fee.
const (
	PriorityNone            = 0
	PriorityHigh            = 0.000005
	PriorityTurbo           = 0.0005
	PriorityMaxSuggested    = 0.01
	lamportsPerSOL          = 1e9
	microLamportsPerLamport = 1e6
	computeUnitBudget       = 1400000
)

var ErrInvalidCalldata = errors.New("invalid solana swap transaction")

type SolanaRPC interface {
	solana.LookupTableFetcher
	GetLatestBlockhash(ctx context.Context) (string, uint64, error)
}

type PreparedSolanaSwap struct {
	Instructions         []solana.Instruction `json:"instructions"`
	RecentBlockhash      string               `json:"recentBlockhash"`
	LastValidBlockHeight uint64               `json:"lastValidBlockHeight"`
	ComputeUnitPrice     uint64               `json:"computeUnitPriceMicroLamports"`
}

// ComputeUnitPrice spreads a priority fee in SOL over the compute unit budget, in micro lamports.
func ComputeUnitPrice(priorityFeeSOL float64) uint64 {
	if priorityFeeSOL <= 0 {
		return 0
	}
	return uint64(math.Round(priorityFeeSOL * lamportsPerSOL * microLamportsPerLamport / computeUnitBudget))
}

// PrepareSolana decodes the quoted transaction and expands it into instructions against a fresh blockhash, ready
// for the wallet to recompile and sign.
func PrepareSolana(ctx context.Context, rpc SolanaRPC, quote *Quote, priorityFeeSOL float64) (*PreparedSolanaSwap, error) {
	calldata, err := quote.FirstCalldata()
	if err != nil {
		return nil, err
	}
	tx, err := solana.DecodeTransactionBase64(calldata.Data)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCalldata, err.Error())
	}
	instructions, err := solana.Reconstruct(ctx, &tx.Message, rpc)
	if err != nil {
		return nil, err
	}
	blockhash, height, err := rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return &PreparedSolanaSwap{
		Instructions:         instructions,
		RecentBlockhash:      blockhash,
		LastValidBlockHeight: height,
		ComputeUnitPrice:     ComputeUnitPrice(priorityFeeSOL),
	}, nil
}
