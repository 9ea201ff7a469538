package chains

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	base, ok := Get(BaseID)
	require.True(t, ok)
	assert.Equal(t, "0x2105", base.IDHex)
	assert.Equal(t, "eip155:8453", base.CAIP2())
	assert.Equal(t, big.NewInt(8453), base.EVMChainID())

	sol, ok := Get(SolanaID)
	require.True(t, ok)
	assert.False(t, sol.IsEVM())
	assert.Nil(t, sol.EVMChainID())
	assert.Equal(t, "solana:"+SolanaID, sol.CAIP2())

	_, ok = Get("31337")
	assert.False(t, ok)
}

func TestIsMultiChainSwap(t *testing.T) {
	assert.True(t, IsMultiChainSwap(BaseID, SolanaID))
	assert.True(t, IsMultiChainSwap(SolanaID, ArbitrumID))
	assert.False(t, IsMultiChainSwap(BaseID, ArbitrumID))
	assert.False(t, IsMultiChainSwap(EthereumID, SolanaID))
	assert.False(t, IsMultiChainSwap(SolanaID, SolanaID))
}
