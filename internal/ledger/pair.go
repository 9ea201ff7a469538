package ledger

import (
	"context"
	"encoding/hex"

	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/pkg/log"
)

type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type ProfileLookup interface {
	ProfileByAddress(ctx context.Context, address string) (*Profile, error)
}

type PairResult struct {
	Device  Device   `json:"device"`
	PubKey  string   `json:"pubKey"`
	Address string   `json:"address"`
	AppInfo AppInfo  `json:"appInfo"`
	Profile *Profile `json:"profile,omitempty"`
}

type Pairer struct {
	Opener     Opener
	Profiles   ProfileLookup
	HRP        string
	MinVersion string
	CoinType   uint32
}

// Pair reads the account of device at index 0 and the profile it already owns, if any.
func (p *Pairer) Pair(ctx context.Context, device Device) (*PairResult, error) {
	app, err := p.Opener.Open(ctx, device)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	info, err := app.AppInfo()
	if err != nil {
		return nil, err
	}
	if err := CheckAppInfo(info, p.MinVersion); err != nil {
		return nil, err
	}
	pubKey, address, err := app.GetAddressAndPubKey(cosmos.HDPath(p.CoinType, 0), p.HRP)
	if err != nil {
		return nil, err
	}

	result := &PairResult{
		Device:  device,
		PubKey:  hex.EncodeToString(pubKey),
		Address: address,
		AppInfo: info,
	}
	if p.Profiles != nil {
		profile, err := p.Profiles.ProfileByAddress(ctx, address)
		if err != nil {
			log.Warnf("ledger pair: lookup profile of %v: %v", address, err)
		}
		result.Profile = profile
	}
	return result, nil
}
