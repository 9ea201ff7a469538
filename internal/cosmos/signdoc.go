package cosmos

import (
	"bytes"
	"encoding/json"

	"moff.io/moff-wallet/pkg/errors"
)

type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type StdFee struct {
	Amount  []Coin `json:"amount"`
	Gas     string `json:"gas"`
	Granter string `json:"granter,omitempty"`
	Payer   string `json:"payer,omitempty"`
}

// Msg is an amino json message. Value is kept raw so unknown message types survive signing untouched.
type Msg struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type StdSignDoc struct {
	ChainID       string `json:"chain_id"`
	AccountNumber string `json:"account_number"`
	Sequence      string `json:"sequence"`
	Fee           StdFee `json:"fee"`
	Msgs          []Msg  `json:"msgs"`
	Memo          string `json:"memo"`
}

func MakeSignDoc(msgs []Msg, fee StdFee, chainID, memo, accountNumber, sequence string) StdSignDoc {
	if accountNumber == "" {
		accountNumber = "0"
	}
	if sequence == "" {
		sequence = "0"
	}
	if fee.Amount == nil {
		fee.Amount = []Coin{}
	}
	if msgs == nil {
		msgs = []Msg{}
	}
	return StdSignDoc{
		ChainID:       chainID,
		AccountNumber: accountNumber,
		Sequence:      sequence,
		Fee:           fee,
		Msgs:          msgs,
		Memo:          memo,
	}
}

// SortedJSON is the canonical amino sign bytes: keys sorted at every level, no whitespace, and &<> escaped as
// unicode escapes the way cosmjs does.
func SortedJSON(doc StdSignDoc) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshal sign doc")
	}
	return sortJSON(raw)
}

func sortJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode sign doc")
	}
	sorted, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode sorted sign doc")
	}
	return sorted, nil
}
