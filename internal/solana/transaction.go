package solana

import (
	"encoding/base64"

	"moff.io/moff-wallet/pkg/errors"
)

const (
	SignatureLength = 64
	versionPrefix   = 0x80
)

type MessageVersion int

const (
	MessageLegacy MessageVersion = -1
	MessageV0     MessageVersion = 0
)

var ErrUnsupportedVersion = errors.New("unsupported transaction message version")

type MessageHeader struct {
	NumRequiredSignatures       uint8 `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   uint8 `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts uint8 `json:"numReadonlyUnsignedAccounts"`
}

type CompiledInstruction struct {
	ProgramIDIndex    uint8   `json:"programIdIndex"`
	AccountKeyIndexes []uint8 `json:"accountKeyIndexes"`
	Data              []byte  `json:"data"`
}

type AddressTableLookup struct {
	AccountKey      PublicKey `json:"accountKey"`
	WritableIndexes []uint8   `json:"writableIndexes"`
	ReadonlyIndexes []uint8   `json:"readonlyIndexes"`
}

type Message struct {
	Version             MessageVersion        `json:"version"`
	Header              MessageHeader         `json:"header"`
	StaticAccountKeys   []PublicKey           `json:"staticAccountKeys"`
	RecentBlockhash     PublicKey             `json:"recentBlockhash"`
	Instructions        []CompiledInstruction `json:"compiledInstructions"`
	AddressTableLookups []AddressTableLookup  `json:"addressTableLookups"`
}

type Transaction struct {
	Signatures [][SignatureLength]byte `json:"-"`
	Message    Message                 `json:"message"`
}

func DecodeTransactionBase64(s string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64 transaction")
	}
	return DecodeTransaction(raw)
}

// DecodeTransaction parses a serialized legacy or v0 transaction.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	r := &reader{data: raw}
	n, err := r.compactU16()
	if err != nil {
		return nil, errors.Wrap(err, "signature count")
	}
	tx := &Transaction{Signatures: make([][SignatureLength]byte, n)}
	for i := 0; i < n; i++ {
		b, err := r.bytes(SignatureLength)
		if err != nil {
			return nil, errors.Wrapf(err, "signature %d", i)
		}
		copy(tx.Signatures[i][:], b)
	}
	msg, err := decodeMessage(r)
	if err != nil {
		return nil, err
	}
	if r.pos != len(raw) {
		return nil, errors.Errorf("%d trailing bytes after message", len(raw)-r.pos)
	}
	tx.Message = *msg
	return tx, nil
}

// DecodeMessage parses a serialized message without the signature section.
func DecodeMessage(raw []byte) (*Message, error) {
	r := &reader{data: raw}
	msg, err := decodeMessage(r)
	if err != nil {
		return nil, err
	}
	if r.pos != len(raw) {
		return nil, errors.Errorf("%d trailing bytes after message", len(raw)-r.pos)
	}
	return msg, nil
}

func decodeMessage(r *reader) (*Message, error) {
	msg := &Message{Version: MessageLegacy}
	first, err := r.u8()
	if err != nil {
		return nil, errors.Wrap(err, "message header")
	}
	if first&versionPrefix != 0 {
		version := first &^ versionPrefix
		if version != 0 {
			return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
		}
		msg.Version = MessageV0
		if first, err = r.u8(); err != nil {
			return nil, errors.Wrap(err, "message header")
		}
	}
	msg.Header.NumRequiredSignatures = first
	if msg.Header.NumReadonlySignedAccounts, err = r.u8(); err != nil {
		return nil, errors.Wrap(err, "message header")
	}
	if msg.Header.NumReadonlyUnsignedAccounts, err = r.u8(); err != nil {
		return nil, errors.Wrap(err, "message header")
	}

	numKeys, err := r.compactU16()
	if err != nil {
		return nil, errors.Wrap(err, "account key count")
	}
	msg.StaticAccountKeys = make([]PublicKey, numKeys)
	for i := range msg.StaticAccountKeys {
		if msg.StaticAccountKeys[i], err = r.publicKey(); err != nil {
			return nil, errors.Wrapf(err, "account key %d", i)
		}
	}
	if int(msg.Header.NumRequiredSignatures) > numKeys ||
		msg.Header.NumReadonlySignedAccounts > msg.Header.NumRequiredSignatures ||
		int(msg.Header.NumRequiredSignatures)+int(msg.Header.NumReadonlyUnsignedAccounts) > numKeys {
		return nil, errors.Errorf("header %+v does not fit %d account keys", msg.Header, numKeys)
	}
	if msg.RecentBlockhash, err = r.publicKey(); err != nil {
		return nil, errors.Wrap(err, "recent blockhash")
	}

	numInstructions, err := r.compactU16()
	if err != nil {
		return nil, errors.Wrap(err, "instruction count")
	}
	msg.Instructions = make([]CompiledInstruction, numInstructions)
	for i := range msg.Instructions {
		ci := &msg.Instructions[i]
		if ci.ProgramIDIndex, err = r.u8(); err != nil {
			return nil, errors.Wrapf(err, "instruction %d program", i)
		}
		if ci.AccountKeyIndexes, err = r.byteList(); err != nil {
			return nil, errors.Wrapf(err, "instruction %d accounts", i)
		}
		if ci.Data, err = r.byteList(); err != nil {
			return nil, errors.Wrapf(err, "instruction %d data", i)
		}
	}

	if msg.Version == MessageLegacy {
		return msg, nil
	}
	numLookups, err := r.compactU16()
	if err != nil {
		return nil, errors.Wrap(err, "lookup count")
	}
	msg.AddressTableLookups = make([]AddressTableLookup, numLookups)
	for i := range msg.AddressTableLookups {
		l := &msg.AddressTableLookups[i]
		if l.AccountKey, err = r.publicKey(); err != nil {
			return nil, errors.Wrapf(err, "lookup %d table", i)
		}
		if l.WritableIndexes, err = r.byteList(); err != nil {
			return nil, errors.Wrapf(err, "lookup %d writable", i)
		}
		if l.ReadonlyIndexes, err = r.byteList(); err != nil {
			return nil, errors.Wrapf(err, "lookup %d readonly", i)
		}
	}
	return msg, nil
}

func (m *Message) numWritableLookups() int {
	n := 0
	for _, l := range m.AddressTableLookups {
		n += len(l.WritableIndexes)
	}
	return n
}

// IsSigner reports whether the account at index of the full key list signs.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumRequiredSignatures)
}

// IsWritable follows the key order static keys, writable lookups, readonly lookups.
func (m *Message) IsWritable(index int) bool {
	numSigned := int(m.Header.NumRequiredSignatures)
	numStatic := len(m.StaticAccountKeys)
	if index >= numStatic {
		return index-numStatic < m.numWritableLookups()
	}
	if index < numSigned {
		return index < numSigned-int(m.Header.NumReadonlySignedAccounts)
	}
	return index-numSigned < numStatic-numSigned-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Serialize renders the message in wire format.
func (m *Message) Serialize() []byte {
	var out []byte
	if m.Version == MessageV0 {
		out = append(out, versionPrefix)
	}
	out = append(out, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)
	out = append(out, encodeCompactU16(len(m.StaticAccountKeys))...)
	for _, k := range m.StaticAccountKeys {
		out = append(out, k[:]...)
	}
	out = append(out, m.RecentBlockhash[:]...)
	out = append(out, encodeCompactU16(len(m.Instructions))...)
	for _, ci := range m.Instructions {
		out = append(out, ci.ProgramIDIndex)
		out = append(out, encodeCompactU16(len(ci.AccountKeyIndexes))...)
		out = append(out, ci.AccountKeyIndexes...)
		out = append(out, encodeCompactU16(len(ci.Data))...)
		out = append(out, ci.Data...)
	}
	if m.Version == MessageV0 {
		out = append(out, encodeCompactU16(len(m.AddressTableLookups))...)
		for _, l := range m.AddressTableLookups {
			out = append(out, l.AccountKey[:]...)
			out = append(out, encodeCompactU16(len(l.WritableIndexes))...)
			out = append(out, l.WritableIndexes...)
			out = append(out, encodeCompactU16(len(l.ReadonlyIndexes))...)
			out = append(out, l.ReadonlyIndexes...)
		}
	}
	return out
}
