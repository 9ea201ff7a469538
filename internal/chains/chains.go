package chains

import (
	"math/big"
	"strconv"
)

type Family string

const (
	FamilyEVM    Family = "eip155"
	FamilySolana Family = "solana"
)

type Blockchain struct {
	// ID is the CAIP-2 reference: the decimal chain id for evm chains, the genesis hash prefix for solana.
	ID     string
	IDHex  string
	Name   string
	Family Family
	// NativeDecimals of the gas token.
	NativeDecimals int
}

// CAIP2 returns "<family>:<id>", the chain id format of walletconnect namespaces.
func (b *Blockchain) CAIP2() string {
	return string(b.Family) + ":" + b.ID
}

// EVMChainID returns nil for non evm chains.
func (b *Blockchain) EVMChainID() *big.Int {
	if b.Family != FamilyEVM {
		return nil
	}
	id, ok := new(big.Int).SetString(b.ID, 10)
	if !ok {
		return nil
	}
	return id
}

func (b *Blockchain) IsEVM() bool {
	return b.Family == FamilyEVM
}

const (
	EthereumID = "1"
	PolygonID  = "137"
	BscID      = "56"
	BaseID     = "8453"
	ArbitrumID = "42161"
	SolanaID   = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
)

var (
	// evm 链 id 与 caip-2 命名空间, 外加 base / arbitrum / solana
	Array = []*Blockchain{
		evm(1, "eth"),
		evm(5, "goerli"),
		evm(137, "polygon"),
		evm(80001, "mumbai"),
		evm(56, "bsc"),
		evm(97, "bsc testnet"),
		evm(43114, "avalanche"),
		evm(43113, "avalanche testnet"),
		evm(250, "fantom"),
		evm(25, "cronos"),
		evm(8453, "base"),
		evm(42161, "arbitrum"),
		{
			ID:             SolanaID,
			Name:           "solana",
			Family:         FamilySolana,
			NativeDecimals: 9,
		},
	}

	Mapping = func() map[string]*Blockchain {
		m := make(map[string]*Blockchain, len(Array))
		for _, c := range Array {
			m[c.ID] = c
		}
		return m
	}()
)

func evm(id int, name string) *Blockchain {
	return &Blockchain{
		ID:             strconv.Itoa(id),
		IDHex:          "0x" + strconv.FormatInt(int64(id), 16),
		Name:           name,
		Family:         FamilyEVM,
		NativeDecimals: 18,
	}
}

func Get(id string) (*Blockchain, bool) {
	c, ok := Mapping[id]
	return c, ok
}

func IsSolana(id string) bool {
	return id == SolanaID
}

// IsMultiChainSwap is true for swaps bridging base or arbitrum with solana, in either direction.
func IsMultiChainSwap(src, dst string) bool {
	bridged := func(id string) bool {
		return id == BaseID || id == ArbitrumID
	}
	return (bridged(src) && IsSolana(dst)) || (IsSolana(src) && bridged(dst))
}
