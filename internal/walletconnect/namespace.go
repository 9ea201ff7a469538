package walletconnect

import (
	"sort"
	"strings"

	"gopkg.in/fatih/set.v0"
	"moff.io/moff-wallet/pkg/errors"
)

var ErrNoSupportedNamespaces = errors.New("no supported namespaces")

// RequiredNamespace is what a peer asks for under one chain family, e.g. "eip155" or "cosmos".
type RequiredNamespace struct {
	Chains  []string `json:"chains"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// Account is the part of a held account the reconciler matches on.
type Account struct {
	ChainID string `json:"chainId"`
	Address string `json:"address"`
}

// ApprovedNamespace accounts are formatted "<family>:<chainId>:<address>".
type ApprovedNamespace struct {
	Accounts []string `json:"accounts"`
	Chains   []string `json:"chains"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
}

type Namespaces map[string]ApprovedNamespace

// Names returns the namespace keys in sorted order.
func (n Namespaces) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// chainReference returns the id part of "<family>:<id>".
func chainReference(chain string) (string, bool) {
	parts := strings.Split(chain, ":")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Reconcile narrows the requested namespaces to the chains some account is held on. Namespaces left without
// accounts are dropped and an empty result is ErrNoSupportedNamespaces.
func Reconcile(required map[string]RequiredNamespace, accounts []Account) (Namespaces, error) {
	requested := set.New(set.NonThreadSafe)
	for _, ns := range required {
		for _, chain := range ns.Chains {
			if id, ok := chainReference(chain); ok {
				requested.Add(id)
			}
		}
	}
	held := set.New(set.NonThreadSafe)
	for _, acc := range accounts {
		held.Add(acc.ChainID)
	}
	supported := set.Intersection(requested, held)

	namespaces := Namespaces{}
	for name, ns := range required {
		var chains, nsAccounts []string
		for _, chain := range ns.Chains {
			id, ok := chainReference(chain)
			if !ok || !supported.Has(id) {
				continue
			}
			acc, found := firstAccountOn(accounts, id)
			if !found {
				continue
			}
			chains = append(chains, chain)
			nsAccounts = append(nsAccounts, chain+":"+acc.Address)
		}
		if len(nsAccounts) == 0 {
			continue
		}
		namespaces[name] = ApprovedNamespace{
			Accounts: nsAccounts,
			Chains:   chains,
			Methods:  copyStrings(ns.Methods),
			Events:   copyStrings(ns.Events),
		}
	}
	if len(namespaces) == 0 {
		return nil, ErrNoSupportedNamespaces
	}
	return namespaces, nil
}

func firstAccountOn(accounts []Account, chainID string) (Account, bool) {
	for _, acc := range accounts {
		if acc.ChainID == chainID {
			return acc, true
		}
	}
	return Account{}, false
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
