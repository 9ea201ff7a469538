package swap

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/pkg/errors"
)

var ErrChainNotSupported = errors.New("chain not supported")

type Service struct {
	Quotes             Quoter
	EVM                map[string]Backend
	Solana             SolanaRPC
	DefaultSlippageBps int
}

func (s *Service) Quote(ctx context.Context, form Form) (*Quote, error) {
	params, err := form.QuoteParams(s.DefaultSlippageBps)
	if err != nil {
		return nil, err
	}
	return s.Quotes.Quote(ctx, params)
}

func (s *Service) evm(chainID string) (*chains.Blockchain, Backend, error) {
	chain, ok := chains.Get(chainID)
	if !ok || !chain.IsEVM() {
		return nil, nil, errors.Wrapf(ErrChainNotSupported, "%s", chainID)
	}
	backend, ok := s.EVM[chainID]
	if !ok {
		return nil, nil, errors.Wrapf(ErrChainNotSupported, "no rpc for %s", chain.Name)
	}
	return chain, backend, nil
}

// EstimateFee returns the network fee of the quoted swap in ether. Solana swaps report zero.
func (s *Service) EstimateFee(ctx context.Context, form Form, quote *Quote) (string, error) {
	if chains.IsSolana(form.SrcChain) {
		return FormatEther(nil), nil
	}
	_, backend, err := s.evm(form.SrcChain)
	if err != nil {
		return "", err
	}
	calldata, err := quote.FirstCalldata()
	if err != nil {
		return "", err
	}
	fee := FeeEstimator{Backend: backend}.Estimate(ctx, common.HexToAddress(form.WalletAddress), form, calldata)
	return FormatEther(fee), nil
}

func (s *Service) SubmitEVM(ctx context.Context, form Form, quote *Quote, key *ecdsa.PrivateKey) (*TxStatus, error) {
	chain, backend, err := s.evm(form.SrcChain)
	if err != nil {
		return nil, err
	}
	calldata, err := quote.FirstCalldata()
	if err != nil {
		return nil, err
	}
	return NewEVMExecutor(backend, chain.EVMChainID()).Submit(ctx, SubmitRequest{
		Key:         key,
		SrcToken:    form.SrcToken,
		IsNative:    form.SrcIsNative,
		Calldata:    calldata,
		InputAmount: quote.InputAmount.Value,
	})
}

func (s *Service) TxStatus(ctx context.Context, chainID, txID string) (*TxStatus, error) {
	chain, backend, err := s.evm(chainID)
	if err != nil {
		return nil, err
	}
	return NewEVMExecutor(backend, chain.EVMChainID()).Status(ctx, txID)
}

func (s *Service) PrepareSolana(ctx context.Context, quote *Quote, priorityFeeSOL float64) (*PreparedSolanaSwap, error) {
	if s.Solana == nil {
		return nil, errors.Wrap(ErrChainNotSupported, "solana rpc is not configured")
	}
	return PrepareSolana(ctx, s.Solana, quote, priorityFeeSOL)
}
