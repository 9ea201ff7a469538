package walletconnect

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported session request method")
	ErrAccountNotFound   = errors.New("no account for request")
	ErrInvalidParams     = errors.New("invalid request params")
	ErrSignerMismatch    = errors.New("key does not match requested address")
)

const (
	MethodCosmosGetAccounts = "cosmos_getAccounts"
	MethodCosmosSignAmino   = "cosmos_signAmino"
	MethodPersonalSign      = "personal_sign"

	rpcInternal = -32000
)

type CosmosAccount struct {
	Algo    string `json:"algo"`
	Address string `json:"address"`
	PubKey  string `json:"pubkey"`
}

// HandleSessionRequest answers one dapp request. Unknown methods and failures are answered with a json rpc error
// and also returned.
func (s *Service) HandleSessionRequest(ctx context.Context, req SessionRequest) error {
	client, err := s.Client(ctx)
	if err != nil {
		return err
	}

	var result interface{}
	switch req.Method {
	case MethodCosmosGetAccounts:
		result, err = s.cosmosAccounts(ctx, req.ChainID)
	case MethodCosmosSignAmino:
		result, err = s.signAmino(ctx, req)
	case MethodPersonalSign:
		result, err = s.personalSign(ctx, req)
	default:
		err = errors.Wrapf(ErrUnsupportedMethod, "method %q", req.Method)
	}

	response := resultResponse(req.ID, result)
	if err != nil {
		reason := RPCError{Code: rpcInternal, Message: err.Error()}
		if errors.Is(err, ErrUnsupportedMethod) {
			reason = ReasonUnsupportedMethods
		}
		response = errorResponse(req.ID, reason)
	}
	if respErr := client.RespondSessionRequest(ctx, req.Topic, response); respErr != nil {
		log.Errorf("wallet connect - respond %d: %v", req.ID, respErr)
		if err == nil {
			err = respErr
		}
	}

	e := newSessionEvent(EventRequest)
	e.Topic = req.Topic
	e.Method = req.Method
	if err != nil {
		e.Error = err.Error()
	}
	s.publish(ctx, e)
	return err
}

func (s *Service) accountsOn(ctx context.Context, chainID string) ([]AccountState, error) {
	states, err := s.opts.Accounts.Accounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load accounts")
	}
	if chainID == "" {
		return states, nil
	}
	var matched []AccountState
	for _, state := range states {
		if state.ChainID == chainID {
			matched = append(matched, state)
		}
	}
	return matched, nil
}

// requestChainID strips the namespace from a CAIP-2 chain, a bare id is returned as is.
func requestChainID(chain string) string {
	if id, ok := chainReference(chain); ok {
		return id
	}
	return chain
}

func (s *Service) cosmosAccounts(ctx context.Context, chain string) ([]CosmosAccount, error) {
	states, err := s.accountsOn(ctx, requestChainID(chain))
	if err != nil {
		return nil, err
	}
	result := make([]CosmosAccount, 0, len(states))
	for _, state := range states {
		pubKey, err := hex.DecodeString(state.PubKey)
		if err != nil {
			return nil, errors.Wrapf(err, "decode pubkey of %s", state.Address)
		}
		result = append(result, CosmosAccount{
			Algo:    "secp256k1",
			Address: state.Address,
			PubKey:  base64.StdEncoding.EncodeToString(pubKey),
		})
	}
	return result, nil
}

func (s *Service) signAmino(ctx context.Context, req SessionRequest) (*cosmos.AminoSignResponse, error) {
	var params struct {
		SignerAddress string            `json:"signerAddress"`
		SignDoc       cosmos.StdSignDoc `json:"signDoc"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(ErrInvalidParams, err.Error())
	}
	in := params.SignDoc
	doc := cosmos.MakeSignDoc(in.Msgs, in.Fee, in.ChainID, in.Memo, in.AccountNumber, in.Sequence)

	states, err := s.accountsOn(ctx, doc.ChainID)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, errors.Wrapf(ErrAccountNotFound, "chain %s", doc.ChainID)
	}
	account := states[0]

	address := params.SignerAddress
	if len(doc.Msgs) > 0 {
		if signer := cosmos.SignerAddress(doc.Msgs[0]); signer != "" {
			address = signer
		}
	}
	signer, err := s.opts.Signers.AminoSigner(ctx, account, cosmos.HDPath(s.opts.CoinType, 0))
	if err != nil {
		return nil, err
	}
	resp, err := signer.SignAmino(ctx, address, doc)
	if err != nil {
		return nil, err
	}
	s.archive(ctx, fmt.Sprintf("amino/%s/%s/%d.json", doc.ChainID, address, req.ID), resp)
	return resp, nil
}

func (s *Service) personalSign(ctx context.Context, req SessionRequest) (string, error) {
	params := gjson.ParseBytes(req.Params).Array()
	if len(params) < 2 {
		return "", errors.Wrap(ErrInvalidParams, "personal_sign wants message and address")
	}
	message, address := params[0].String(), params[1].String()
	if isHexAddress(message) && !isHexAddress(address) {
		message, address = address, message
	}

	states, err := s.accountsOn(ctx, requestChainID(req.ChainID))
	if err != nil {
		return "", err
	}
	var account *AccountState
	for i := range states {
		if strings.EqualFold(states[i].Address, address) {
			account = &states[i]
			break
		}
	}
	if account == nil {
		return "", errors.Wrapf(ErrAccountNotFound, "address %s", address)
	}

	key, err := s.opts.Signers.EVMKey(ctx, *account)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(crypto.PubkeyToAddress(key.PublicKey).Hex(), address) {
		return "", errors.Wrapf(ErrSignerMismatch, "address %s", address)
	}
	msg := personalMessage(message)
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return "", errors.Wrap(err, "personal sign")
	}
	sig[crypto.RecoveryIDOffset] += 27
	signature := hexutil.Encode(sig)
	if !VerifyPersonalSignature(address, signature, msg) {
		return "", errors.NewWithReport("personal signature does not recover to signer")
	}
	s.archive(ctx, fmt.Sprintf("personal_sign/%s/%d.json", address, req.ID), map[string]string{
		"message":   hexutil.Encode(msg),
		"signature": signature,
	})
	return signature, nil
}

func personalMessage(message string) []byte {
	if strings.HasPrefix(message, "0x") {
		if decoded, err := hexutil.Decode(message); err == nil {
			return decoded
		}
	}
	return []byte(message)
}

func isHexAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

func (s *Service) archive(ctx context.Context, key string, v interface{}) {
	if s.opts.Archiver == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		log.Warnf("wallet connect - marshal archive %v: %v", key, err)
		return
	}
	if err := s.opts.Archiver.ArchiveSignedDoc(ctx, key, body); err != nil {
		log.Warnf("wallet connect - archive %v: %v", key, err)
	}
}
