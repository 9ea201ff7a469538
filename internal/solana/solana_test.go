package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/pkg/errors"
)

func key(b byte) PublicKey {
	var k PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func repeat(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func k(b byte) []byte {
	return repeat(b, 32)
}

// v0 transaction: 3 static keys, one instruction touching two lookup table entries.
var v0Fixture = concat(
	[]byte{0x01}, repeat(0x11, 64),
	[]byte{0x80, 0x01, 0x00, 0x01},
	[]byte{0x03}, k(1), k(2), k(3),
	k(9),
	[]byte{0x01, 0x02, 0x05, 0x00, 0x01, 0x03, 0x04, 0x05, 0x02, 0xde, 0xad},
	[]byte{0x01}, k(7), []byte{0x01, 0x01}, []byte{0x02, 0x00, 0x02},
)

var legacyFixture = concat(
	[]byte{0x01}, repeat(0x22, 64),
	[]byte{0x01, 0x00, 0x01},
	[]byte{0x03}, k(1), k(2), k(3),
	k(9),
	[]byte{0x01, 0x02, 0x02, 0x00, 0x01, 0x00},
)

func lookupTableFixture(addresses ...PublicKey) []byte {
	meta := make([]byte, lookupTableMetaSize)
	binary.LittleEndian.PutUint32(meta[0:4], 1)
	binary.LittleEndian.PutUint64(meta[4:12], ^uint64(0))
	binary.LittleEndian.PutUint64(meta[12:20], 1000)
	meta[21] = 1
	copy(meta[22:54], k(5))
	for _, a := range addresses {
		meta = append(meta, a[:]...)
	}
	return meta
}

type fakeFetcher map[PublicKey]*LookupTable

func (f fakeFetcher) GetLookupTable(ctx context.Context, k PublicKey) (*LookupTable, error) {
	table, ok := f[k]
	if !ok {
		return nil, ErrLookupTableNotFound
	}
	return table, nil
}

func TestCompactU16(t *testing.T) {
	cases := []struct {
		in   []byte
		want int
		size int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x7f}, 127, 1},
		{[]byte{0x80, 0x01}, 128, 2},
		{[]byte{0xff, 0x7f}, 16383, 2},
		{[]byte{0x80, 0x80, 0x01}, 16384, 3},
		{[]byte{0xff, 0xff, 0x03}, 65535, 3},
	}
	for _, c := range cases {
		v, n, err := decodeCompactU16(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, v)
		assert.Equal(t, c.size, n)
		assert.Equal(t, c.in, encodeCompactU16(c.want))
	}

	for _, bad := range [][]byte{{0x80, 0x00}, {0xff, 0xff, 0x04}, {0x80}, {}} {
		_, _, err := decodeCompactU16(bad)
		assert.Error(t, err, "%x", bad)
	}
}

func TestDecodeV0Transaction(t *testing.T) {
	tx, err := DecodeTransaction(v0Fixture)
	require.NoError(t, err)
	msg := tx.Message

	assert.Len(t, tx.Signatures, 1)
	assert.Equal(t, MessageV0, msg.Version)
	assert.Equal(t, MessageHeader{1, 0, 1}, msg.Header)
	assert.Equal(t, []PublicKey{key(1), key(2), key(3)}, msg.StaticAccountKeys)
	assert.Equal(t, key(9), msg.RecentBlockhash)
	require.Len(t, msg.Instructions, 1)
	assert.Equal(t, CompiledInstruction{
		ProgramIDIndex:    2,
		AccountKeyIndexes: []uint8{0, 1, 3, 4, 5},
		Data:              []byte{0xde, 0xad},
	}, msg.Instructions[0])
	require.Len(t, msg.AddressTableLookups, 1)
	assert.Equal(t, AddressTableLookup{
		AccountKey:      key(7),
		WritableIndexes: []uint8{1},
		ReadonlyIndexes: []uint8{0, 2},
	}, msg.AddressTableLookups[0])

	assert.Equal(t, v0Fixture[1+64:], msg.Serialize())
}

func TestDecodeLegacyTransaction(t *testing.T) {
	tx, err := DecodeTransactionBase64(base64.StdEncoding.EncodeToString(legacyFixture))
	require.NoError(t, err)
	assert.Equal(t, MessageLegacy, tx.Message.Version)
	assert.Empty(t, tx.Message.AddressTableLookups)
	assert.Equal(t, legacyFixture[1+64:], tx.Message.Serialize())

	instructions, err := ReconstructWithTables(&tx.Message, nil)
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Equal(t, key(3), instructions[0].ProgramID)
	assert.Equal(t, []AccountMeta{
		{PubKey: key(1), IsSigner: true, IsWritable: true},
		{PubKey: key(2), IsSigner: false, IsWritable: true},
	}, instructions[0].Accounts)
	assert.Empty(t, instructions[0].Data)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := DecodeTransaction(v0Fixture[:len(v0Fixture)-1])
	assert.True(t, errors.Is(err, ErrShortBuffer))

	_, err = DecodeTransaction(append(append([]byte{}, legacyFixture...), 0x00))
	assert.Error(t, err)

	v1 := append([]byte{}, v0Fixture...)
	v1[65] = 0x81
	_, err = DecodeTransaction(v1)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	badHeader := append([]byte{}, legacyFixture...)
	badHeader[65] = 0x04
	_, err = DecodeTransaction(badHeader)
	assert.Error(t, err)
}

func TestMessageAccountFlags(t *testing.T) {
	msg := &Message{
		Header:            MessageHeader{NumRequiredSignatures: 2, NumReadonlySignedAccounts: 1, NumReadonlyUnsignedAccounts: 1},
		StaticAccountKeys: []PublicKey{key(1), key(2), key(3), key(4)},
		AddressTableLookups: []AddressTableLookup{
			{WritableIndexes: []uint8{0}, ReadonlyIndexes: []uint8{1}},
		},
	}
	signer := []bool{true, true, false, false, false, false}
	writable := []bool{true, false, true, false, true, false}
	for i := range signer {
		assert.Equal(t, signer[i], msg.IsSigner(i), "signer %d", i)
		assert.Equal(t, writable[i], msg.IsWritable(i), "writable %d", i)
	}
}

func TestDecodeLookupTable(t *testing.T) {
	table, err := DecodeLookupTable(key(7), lookupTableFixture(key(0x20), key(0x21)))
	require.NoError(t, err)
	assert.Equal(t, []PublicKey{key(0x20), key(0x21)}, table.Addresses)
	assert.Equal(t, ^uint64(0), table.DeactivationSlot)
	require.NotNil(t, table.Authority)
	assert.Equal(t, key(5), *table.Authority)

	_, err = DecodeLookupTable(key(7), make([]byte, 40))
	assert.Error(t, err)
	_, err = DecodeLookupTable(key(7), append(lookupTableFixture(), 0x01))
	assert.Error(t, err)
	wrongType := lookupTableFixture()
	wrongType[0] = 2
	_, err = DecodeLookupTable(key(7), wrongType)
	assert.Error(t, err)
}

func TestReconstruct(t *testing.T) {
	tx, err := DecodeTransaction(v0Fixture)
	require.NoError(t, err)
	table, err := DecodeLookupTable(key(7), lookupTableFixture(key(0x20), key(0x21), key(0x22)))
	require.NoError(t, err)

	instructions, err := Reconstruct(context.Background(), &tx.Message, fakeFetcher{key(7): table})
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	ix := instructions[0]
	assert.Equal(t, key(3), ix.ProgramID)
	assert.Equal(t, []byte{0xde, 0xad}, ix.Data)
	assert.Equal(t, []AccountMeta{
		{PubKey: key(1), IsSigner: true, IsWritable: true},
		{PubKey: key(2), IsWritable: true},
		{PubKey: key(0x21), IsWritable: true},
		{PubKey: key(0x20)},
		{PubKey: key(0x22)},
	}, ix.Accounts)
}

func TestReconstructFailures(t *testing.T) {
	tx, err := DecodeTransaction(v0Fixture)
	require.NoError(t, err)

	_, err = Reconstruct(context.Background(), &tx.Message, fakeFetcher{})
	assert.True(t, errors.Is(err, ErrLookupTableNotFound))

	short, err := DecodeLookupTable(key(7), lookupTableFixture(key(0x20)))
	require.NoError(t, err)
	_, err = Reconstruct(context.Background(), &tx.Message, fakeFetcher{key(7): short})
	assert.Error(t, err)

	_, err = ReconstructWithTables(&tx.Message, []*LookupTable{nil})
	assert.True(t, errors.Is(err, ErrLookupTableNotFound))
}

func TestPublicKeyBase58(t *testing.T) {
	var zero PublicKey
	assert.Equal(t, "11111111111111111111111111111111", zero.String())
	parsed, err := PublicKeyFromBase58(key(7).String())
	require.NoError(t, err)
	assert.Equal(t, key(7), parsed)

	_, err = PublicKeyFromBase58("abc")
	assert.Error(t, err)
	_, err = PublicKeyFromBase58("0OIl")
	assert.Error(t, err)
}

func TestRPCClient(t *testing.T) {
	tableData := base64.StdEncoding.EncodeToString(lookupTableFixture(key(0x20)))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		id := req.Get("id").Raw
		w.Header().Set("Content-Type", "application/json")
		switch req.Get("method").String() {
		case "getAccountInfo":
			if req.Get("params.0").String() == key(7).String() {
				w.Write([]byte(`{"jsonrpc":"2.0","id":` + id + `,"result":{"context":{"slot":1},"value":{"data":["` + tableData + `","base64"],"owner":"AddressLookupTab1e1111111111111111111111111"}}}`))
				return
			}
			w.Write([]byte(`{"jsonrpc":"2.0","id":` + id + `,"result":{"context":{"slot":1},"value":null}}`))
		case "getLatestBlockhash":
			w.Write([]byte(`{"jsonrpc":"2.0","id":` + id + `,"result":{"context":{"slot":1},"value":{"blockhash":"EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N","lastValidBlockHeight":3090}}}`))
		default:
			w.Write([]byte(`{"jsonrpc":"2.0","id":` + id + `,"error":{"code":-32601,"message":"Method not found"}}`))
		}
	}))
	defer server.Close()

	client := NewRPCClient(server.URL, 100)
	ctx := context.Background()

	table, err := client.GetLookupTable(ctx, key(7))
	require.NoError(t, err)
	assert.Equal(t, []PublicKey{key(0x20)}, table.Addresses)

	_, err = client.GetLookupTable(ctx, key(8))
	assert.True(t, errors.Is(err, ErrLookupTableNotFound))

	blockhash, height, err := client.GetLatestBlockhash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", blockhash)
	assert.Equal(t, uint64(3090), height)

	_, err = client.call(ctx, "getBalance")
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(-32601), rpcErr.Code)
}
