package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/ratelimit"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	defaultTimeout    = time.Second * 10
	defaultRatePerSec = 10
	commitment        = "confirmed"
)

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return "solana rpc: " + e.Message
}

// RPCClient speaks the solana json-rpc api, paced to a fixed number of requests per second.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	id         atomic.Int64
}

func NewRPCClient(endpoint string, ratePerSec int) *RPCClient {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    ratelimit.New(ratePerSec),
	}
}

// GetAccountInfo returns nil data when the account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, key PublicKey) ([]byte, error) {
	result, err := c.call(ctx, "getAccountInfo", key.String(), map[string]string{
		"encoding":   "base64",
		"commitment": commitment,
	})
	if err != nil {
		return nil, err
	}
	value := result.Get("value")
	if !value.Exists() || value.Type == gjson.Null {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(value.Get("data.0").String())
	if err != nil {
		return nil, errors.Wrapf(err, "decode account %s", key)
	}
	return data, nil
}

func (c *RPCClient) GetLookupTable(ctx context.Context, key PublicKey) (*LookupTable, error) {
	data, err := c.GetAccountInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.Wrapf(ErrLookupTableNotFound, "%s", key)
	}
	return DecodeLookupTable(key, data)
}

func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (string, uint64, error) {
	result, err := c.call(ctx, "getLatestBlockhash", map[string]string{"commitment": commitment})
	if err != nil {
		return "", 0, err
	}
	blockhash := result.Get("value.blockhash").String()
	if blockhash == "" {
		return "", 0, errors.Errorf("getLatestBlockhash: empty result %s", result.Raw)
	}
	return blockhash, result.Get("value.lastValidBlockHeight").Uint(), nil
}

func (c *RPCClient) call(ctx context.Context, method string, params ...interface{}) (gjson.Result, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.id.Inc(),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return gjson.Result{}, errors.WithStack(err)
	}
	c.limiter.Take()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "create solana rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "solana rpc %s", method)
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, errors.Errorf("solana rpc %s: status %d %s", method, resp.StatusCode, string(b))
	}
	if rpcErr := gjson.GetBytes(b, "error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return gjson.Result{}, &RPCError{Code: rpcErr.Get("code").Int(), Message: rpcErr.Get("message").String()}
	}
	return gjson.GetBytes(b, "result"), nil
}
