package solana

import (
	"context"
	"encoding/binary"
	"sync"

	"golang.org/x/sync/errgroup"
	"moff.io/moff-wallet/pkg/concurrent"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	lookupTableMetaSize          = 56
	lookupTableTypeDiscriminator = 1
	maxConcurrentLookups         = 4
)

var ErrLookupTableNotFound = errors.New("address lookup table not found")

type LookupTable struct {
	Key              PublicKey
	DeactivationSlot uint64
	Authority        *PublicKey
	Addresses        []PublicKey
}

// DecodeLookupTable parses address lookup table account data: 56 bytes of meta followed by 32 byte addresses.
func DecodeLookupTable(key PublicKey, data []byte) (*LookupTable, error) {
	if len(data) < lookupTableMetaSize {
		return nil, errors.Errorf("lookup table %s: %d bytes is shorter than its meta", key, len(data))
	}
	if discriminator := binary.LittleEndian.Uint32(data[0:4]); discriminator != lookupTableTypeDiscriminator {
		return nil, errors.Errorf("lookup table %s: account type %d", key, discriminator)
	}
	body := data[lookupTableMetaSize:]
	if len(body)%PublicKeyLength != 0 {
		return nil, errors.Errorf("lookup table %s: %d address bytes", key, len(body))
	}
	table := &LookupTable{
		Key:              key,
		DeactivationSlot: binary.LittleEndian.Uint64(data[4:12]),
		Addresses:        make([]PublicKey, len(body)/PublicKeyLength),
	}
	// data[12:20] last extended slot, data[20] its start index
	if data[21] == 1 {
		var authority PublicKey
		copy(authority[:], data[22:54])
		table.Authority = &authority
	}
	for i := range table.Addresses {
		copy(table.Addresses[i][:], body[i*PublicKeyLength:])
	}
	return table, nil
}

type LookupTableFetcher interface {
	// GetLookupTable returns ErrLookupTableNotFound when the account does not exist.
	GetLookupTable(ctx context.Context, key PublicKey) (*LookupTable, error)
}

// FetchLookupTables loads the tables of msg concurrently, in lookup order.
func FetchLookupTables(ctx context.Context, fetcher LookupTableFetcher, msg *Message) ([]*LookupTable, error) {
	tables := make([]*LookupTable, len(msg.AddressTableLookups))
	if len(tables) == 0 {
		return tables, nil
	}
	limiter := concurrent.NewLimiter(maxConcurrentLookups)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var addErr error
	for i, lookup := range msg.AddressTableLookups {
		i, key := i, lookup.AccountKey
		if addErr = limiter.AddContext(gctx); addErr != nil {
			break
		}
		g.Go(func() error {
			defer limiter.Done()
			table, err := fetcher.GetLookupTable(gctx, key)
			if err != nil {
				return errors.Wrapf(err, "lookup table %s", key)
			}
			mu.Lock()
			tables[i] = table
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if addErr != nil {
		return nil, addErr
	}
	return tables, nil
}
