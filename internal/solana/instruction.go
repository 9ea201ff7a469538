package solana

import (
	"context"

	"moff.io/moff-wallet/pkg/errors"
)

type AccountMeta struct {
	PubKey     PublicKey `json:"pubkey"`
	IsSigner   bool      `json:"isSigner"`
	IsWritable bool      `json:"isWritable"`
}

type Instruction struct {
	ProgramID PublicKey     `json:"programId"`
	Accounts  []AccountMeta `json:"keys"`
	Data      []byte        `json:"data"`
}

// AccountKeys resolves the full key list: static keys, then every writable lookup, then every readonly lookup.
func AccountKeys(msg *Message, tables []*LookupTable) ([]PublicKey, error) {
	if len(tables) != len(msg.AddressTableLookups) {
		return nil, errors.Errorf("%d lookup tables for %d lookups", len(tables), len(msg.AddressTableLookups))
	}
	keys := append([]PublicKey{}, msg.StaticAccountKeys...)
	resolve := func(pick func(AddressTableLookup) []uint8) error {
		for i, lookup := range msg.AddressTableLookups {
			table := tables[i]
			if table == nil {
				return errors.Wrapf(ErrLookupTableNotFound, "%s", lookup.AccountKey)
			}
			for _, index := range pick(lookup) {
				if int(index) >= len(table.Addresses) {
					return errors.Errorf("lookup table %s has no index %d", lookup.AccountKey, index)
				}
				keys = append(keys, table.Addresses[index])
			}
		}
		return nil
	}
	if err := resolve(func(l AddressTableLookup) []uint8 { return l.WritableIndexes }); err != nil {
		return nil, err
	}
	if err := resolve(func(l AddressTableLookup) []uint8 { return l.ReadonlyIndexes }); err != nil {
		return nil, err
	}
	return keys, nil
}

// Reconstruct expands the compiled instructions of msg into instructions with explicit account metas.
func Reconstruct(ctx context.Context, msg *Message, fetcher LookupTableFetcher) ([]Instruction, error) {
	tables, err := FetchLookupTables(ctx, fetcher, msg)
	if err != nil {
		return nil, err
	}
	return ReconstructWithTables(msg, tables)
}

func ReconstructWithTables(msg *Message, tables []*LookupTable) ([]Instruction, error) {
	keys, err := AccountKeys(msg, tables)
	if err != nil {
		return nil, err
	}
	instructions := make([]Instruction, 0, len(msg.Instructions))
	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, errors.Errorf("instruction %d: program index %d out of %d keys", i, ci.ProgramIDIndex, len(keys))
		}
		ix := Instruction{
			ProgramID: keys[ci.ProgramIDIndex],
			Accounts:  make([]AccountMeta, 0, len(ci.AccountKeyIndexes)),
			Data:      append([]byte{}, ci.Data...),
		}
		for _, index := range ci.AccountKeyIndexes {
			if int(index) >= len(keys) {
				return nil, errors.Errorf("instruction %d: account index %d out of %d keys", i, index, len(keys))
			}
			ix.Accounts = append(ix.Accounts, AccountMeta{
				PubKey:     keys[index],
				IsSigner:   msg.IsSigner(int(index)),
				IsWritable: msg.IsWritable(int(index)),
			})
		}
		instructions = append(instructions, ix)
	}
	return instructions, nil
}
