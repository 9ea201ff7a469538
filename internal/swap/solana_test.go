package swap

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/internal/solana"
	"moff.io/moff-wallet/pkg/errors"
)

func pk(b byte) solana.PublicKey {
	var k solana.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

type fakeSolana struct {
	tables map[solana.PublicKey]*solana.LookupTable
}

func (f *fakeSolana) GetLookupTable(ctx context.Context, key solana.PublicKey) (*solana.LookupTable, error) {
	table, ok := f.tables[key]
	if !ok {
		return nil, solana.ErrLookupTableNotFound
	}
	return table, nil
}

func (f *fakeSolana) GetLatestBlockhash(ctx context.Context) (string, uint64, error) {
	return pk(9).String(), 42, nil
}

func swapTransaction() string {
	msg := solana.Message{
		Version:           solana.MessageV0,
		Header:            solana.MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
		StaticAccountKeys: []solana.PublicKey{pk(1), pk(2)},
		RecentBlockhash:   pk(3),
		Instructions: []solana.CompiledInstruction{
			{ProgramIDIndex: 1, AccountKeyIndexes: []uint8{0, 2}, Data: []byte{7}},
		},
		AddressTableLookups: []solana.AddressTableLookup{
			{AccountKey: pk(8), WritableIndexes: []uint8{0}},
		},
	}
	raw := append([]byte{0x01}, make([]byte, 64)...)
	return base64.StdEncoding.EncodeToString(append(raw, msg.Serialize()...))
}

func TestComputeUnitPrice(t *testing.T) {
	assert.Equal(t, uint64(0), ComputeUnitPrice(PriorityNone))
	assert.Equal(t, uint64(3571), ComputeUnitPrice(PriorityHigh))
	assert.Equal(t, uint64(357143), ComputeUnitPrice(PriorityTurbo))
}

func TestPrepareSolana(t *testing.T) {
	rpc := &fakeSolana{tables: map[solana.PublicKey]*solana.LookupTable{
		pk(8): {Key: pk(8), Addresses: []solana.PublicKey{pk(0x30)}},
	}}
	quote := &Quote{Calldatas: []Calldata{{Data: swapTransaction()}}}

	prepared, err := PrepareSolana(context.Background(), rpc, quote, PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, pk(9).String(), prepared.RecentBlockhash)
	assert.Equal(t, uint64(42), prepared.LastValidBlockHeight)
	assert.Equal(t, uint64(3571), prepared.ComputeUnitPrice)
	require.Len(t, prepared.Instructions, 1)
	ix := prepared.Instructions[0]
	assert.Equal(t, pk(2), ix.ProgramID)
	assert.Equal(t, []solana.AccountMeta{
		{PubKey: pk(1), IsSigner: true, IsWritable: true},
		{PubKey: pk(0x30), IsWritable: true},
	}, ix.Accounts)
}

func TestPrepareSolanaErrors(t *testing.T) {
	rpc := &fakeSolana{}
	_, err := PrepareSolana(context.Background(), rpc, &Quote{Calldatas: []Calldata{{Data: "not base64!"}}}, 0)
	assert.True(t, errors.Is(err, ErrInvalidCalldata))

	_, err = PrepareSolana(context.Background(), rpc, &Quote{Calldatas: []Calldata{{Data: swapTransaction()}}}, 0)
	assert.True(t, errors.Is(err, solana.ErrLookupTableNotFound))

	_, err = PrepareSolana(context.Background(), rpc, &Quote{}, 0)
	assert.True(t, errors.Is(err, ErrNoRoute))
}

type fakeQuoter struct {
	params QuoteParams
	quote  *Quote
}

func (f *fakeQuoter) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	f.params = params
	return f.quote, nil
}

func TestServiceRouting(t *testing.T) {
	quoter := &fakeQuoter{quote: &Quote{Calldatas: []Calldata{{To: routerAddr.Hex()}}}}
	svc := &Service{Quotes: quoter, DefaultSlippageBps: 50}
	ctx := context.Background()

	quote, err := svc.Quote(ctx, Form{SrcChain: chains.BaseID, FromValue: "1", SrcDecimals: 6})
	require.NoError(t, err)
	assert.Equal(t, "1000000", quoter.params.Amount)
	assert.Equal(t, 500, quoter.params.Slippage)

	fee, err := svc.EstimateFee(ctx, Form{SrcChain: chains.SolanaID}, quote)
	require.NoError(t, err)
	assert.Equal(t, "0.0", fee)

	_, err = svc.EstimateFee(ctx, Form{SrcChain: chains.BaseID}, quote)
	assert.True(t, errors.Is(err, ErrChainNotSupported))

	_, err = svc.TxStatus(ctx, "31337", "0x00")
	assert.True(t, errors.Is(err, ErrChainNotSupported))

	_, err = svc.PrepareSolana(ctx, quote, 0)
	assert.True(t, errors.Is(err, ErrChainNotSupported))
}
