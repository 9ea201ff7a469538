package swap

import (
	"context"
	"io/ioutil"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/pkg/errors"
)

const defaultTimeout = time.Second * 10

var ErrNoRoute = errors.New("no swap route")

type Amount struct {
	Value    *big.Int `json:"value"`
	Decimals int      `json:"decimals"`
}

// Format renders the amount, fallbackDecimals applies when the quote left decimals out.
func (a Amount) Format(fallbackDecimals int) string {
	decimals := a.Decimals
	if decimals == 0 {
		decimals = fallbackDecimals
	}
	return FormatUnits(a.Value, decimals)
}

// Calldata is a transaction to send: an evm call, or for solana a base64 serialized transaction in Data.
type Calldata struct {
	To    string   `json:"to,omitempty"`
	Value *big.Int `json:"value,omitempty"`
	Data  string   `json:"data"`
}

type Quote struct {
	InputAmount  Amount     `json:"inputAmount"`
	OutputAmount Amount     `json:"outputAmount"`
	Calldatas    []Calldata `json:"calldatas"`
}

func (q *Quote) FirstCalldata() (Calldata, error) {
	if len(q.Calldatas) == 0 {
		return Calldata{}, errors.Wrap(ErrNoRoute, "quote has no calldata")
	}
	return q.Calldatas[0], nil
}

type Quoter interface {
	Quote(ctx context.Context, params QuoteParams) (*Quote, error)
}

type QuoteClient struct {
	apiBaseURL string
	httpClient *http.Client
}

func NewQuoteClient(apiBaseURL string) *QuoteClient {
	return &QuoteClient{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func (c *QuoteClient) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	b, err := c.request(ctx, "/quote?"+params.Values().Encode())
	if err != nil {
		return nil, err
	}
	return ParseQuote(b)
}

// ParseQuote reads a quote response. Evm routes carry one calldata object, solana routes an array of them.
func ParseQuote(b []byte) (*Quote, error) {
	res := gjson.ParseBytes(b)
	calldatas := res.Get("calldatas")
	if !calldatas.Exists() || calldatas.Type == gjson.Null {
		msg := res.Get("message").String()
		if msg == "" {
			msg = res.Get("error").String()
		}
		return nil, errors.Wrapf(ErrNoRoute, "%s", msg)
	}
	q := &Quote{
		InputAmount:  parseAmount(res.Get("inputAmount")),
		OutputAmount: parseAmount(res.Get("outputAmount")),
	}
	appendCalldata := func(r gjson.Result) {
		q.Calldatas = append(q.Calldatas, Calldata{
			To:    r.Get("to").String(),
			Value: parseBig(r.Get("value")),
			Data:  r.Get("data").String(),
		})
	}
	if calldatas.IsArray() {
		calldatas.ForEach(func(_, v gjson.Result) bool {
			appendCalldata(v)
			return true
		})
	} else {
		appendCalldata(calldatas)
	}
	return q, nil
}

func parseAmount(r gjson.Result) Amount {
	return Amount{Value: parseBig(r.Get("value")), Decimals: int(r.Get("decimals").Int())}
}

// parseBig accepts decimal or 0x prefixed hex, as a json string or number.
func parseBig(r gjson.Result) *big.Int {
	s := strings.TrimSpace(r.String())
	if s == "" {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return new(big.Int)
	}
	return n
}

func (c *QuoteClient) request(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return nil, errors.WrapAndReport(err, "create new http request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithStackAndReport(err)
	}
	defer resp.Body.Close()

	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStackAndReport(err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, errors.Wrapf(ErrNoRoute, "quote api %d: %s", resp.StatusCode, string(b))
		}
		return nil, errors.ErrorfAndReport("request quote api:%v", string(b))
	}
	return b, nil
}
