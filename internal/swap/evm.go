package swap

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const erc20ABIJSON = `[
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	erc20ABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
		if err != nil {
			panic(err)
		}
		return parsed
	}()

	// FallbackFee is reported when gas estimation fails, 2e12 wei.
	FallbackFee = big.NewInt(2000000000000)

	ErrSimulationFailed = errors.New("transaction simulation failed")
	ErrApproveFailed    = errors.New("token approval failed")
)

type GasBackend interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Backend is an evm node, *ethclient.Client in production.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// DialEVM connects to every configured rpc url, keyed by chain id.
func DialEVM(ctx context.Context, urls map[string]string) (map[string]Backend, error) {
	backends := make(map[string]Backend, len(urls))
	for chainID, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, errors.Wrapf(err, "dial chain %s", chainID)
		}
		backends[chainID] = client
	}
	return backends, nil
}

type FeeEstimator struct {
	Backend GasBackend
}

// Estimate returns gas × gas price in wei for the swap call, or for a token the transfer of the quoted value.
// Any estimation failure yields FallbackFee.
func (e FeeEstimator) Estimate(ctx context.Context, from common.Address, form Form, calldata Calldata) *big.Int {
	gasPrice, err := e.Backend.SuggestGasPrice(ctx)
	if err != nil {
		log.Warnf("suggest gas price: %v", err)
		return new(big.Int).Set(FallbackFee)
	}
	msg, err := feeCall(from, form, calldata)
	if err != nil {
		log.Warnf("build fee call: %v", err)
		return new(big.Int).Set(FallbackFee)
	}
	gas, err := e.Backend.EstimateGas(ctx, msg)
	if err != nil {
		log.Warnf("estimate gas of %v: %v", msg.To, err)
		return new(big.Int).Set(FallbackFee)
	}
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
}

func feeCall(from common.Address, form Form, calldata Calldata) (ethereum.CallMsg, error) {
	if form.SrcIsNative {
		to := common.HexToAddress(calldata.To)
		return ethereum.CallMsg{From: from, To: &to, Value: calldata.Value, Data: common.FromHex(calldata.Data)}, nil
	}
	amount := calldata.Value
	if amount == nil {
		amount = new(big.Int)
	}
	data, err := erc20ABI.Pack("transfer", common.HexToAddress(form.DestToken), amount)
	if err != nil {
		return ethereum.CallMsg{}, errors.WithStack(err)
	}
	token := common.HexToAddress(form.SrcToken)
	return ethereum.CallMsg{From: from, To: &token, Data: data}, nil
}

type TxState string

const (
	TxLoading TxState = "loading"
	TxFail    TxState = "fail"
	TxSuccess TxState = "success"
	TxTimeout TxState = "timeout"
)

type TxStatus struct {
	TxID   string  `json:"txid"`
	Status TxState `json:"status"`
}

type SubmitRequest struct {
	Key         *ecdsa.PrivateKey
	SrcToken    string
	IsNative    bool
	Calldata    Calldata
	InputAmount *big.Int
}

type EVMExecutor struct {
	backend Backend
	chainID *big.Int
}

func NewEVMExecutor(backend Backend, chainID *big.Int) *EVMExecutor {
	return &EVMExecutor{backend: backend, chainID: chainID}
}

// Submit approves the router for a token input and waits for it to be mined, simulates the swap call and sends
// it. The returned status is loading until the tx is mined.
func (e *EVMExecutor) Submit(ctx context.Context, req SubmitRequest) (*TxStatus, error) {
	from := crypto.PubkeyToAddress(req.Key.PublicKey)
	spender := common.HexToAddress(req.Calldata.To)
	if !req.IsNative {
		if err := e.approve(ctx, req.Key, common.HexToAddress(req.SrcToken), spender, req.InputAmount); err != nil {
			return nil, err
		}
	}
	msg := ethereum.CallMsg{
		From:  from,
		To:    &spender,
		Value: req.Calldata.Value,
		Data:  common.FromHex(req.Calldata.Data),
	}
	if _, err := e.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, errors.Wrap(ErrSimulationFailed, err.Error())
	}
	tx, err := e.send(ctx, req.Key, msg)
	if err != nil {
		return nil, err
	}
	log.Infof("swap tx %v sent from %v", tx.Hash().Hex(), from.Hex())
	return &TxStatus{TxID: tx.Hash().Hex(), Status: TxLoading}, nil
}

func (e *EVMExecutor) approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) error {
	if amount == nil {
		amount = new(big.Int)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, e.chainID)
	if err != nil {
		return errors.WithStack(err)
	}
	opts.Context = ctx
	contract := bind.NewBoundContract(token, erc20ABI, e.backend, e.backend, e.backend)
	tx, err := contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return errors.Wrap(ErrApproveFailed, err.Error())
	}
	receipt, err := bind.WaitMined(ctx, e.backend, tx)
	if err != nil {
		return errors.Wrap(ErrApproveFailed, err.Error())
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Wrapf(ErrApproveFailed, "approve tx %s reverted", tx.Hash().Hex())
	}
	return nil
}

func (e *EVMExecutor) send(ctx context.Context, key *ecdsa.PrivateKey, msg ethereum.CallMsg) (*types.Transaction, error) {
	nonce, err := e.backend.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return nil, errors.Wrap(err, "pending nonce")
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "suggest gas price")
	}
	gas, err := e.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, "estimate gas")
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTransaction(nonce, *msg.To, value, gas, gasPrice, msg.Data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "send transaction")
	}
	return signed, nil
}

// Status looks up the receipt of txID.
func (e *EVMExecutor) Status(ctx context.Context, txID string) (*TxStatus, error) {
	receipt, err := e.backend.TransactionReceipt(ctx, common.HexToHash(txID))
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		return &TxStatus{TxID: txID, Status: TxLoading}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "receipt of %s", txID)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return &TxStatus{TxID: txID, Status: TxSuccess}, nil
	}
	return &TxStatus{TxID: txID, Status: TxFail}, nil
}
