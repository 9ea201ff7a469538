package cosmos

import "github.com/tidwall/gjson"

// MsgKind groups amino message types by the field that names their signer.
type MsgKind int

const (
	MsgKindDefault MsgKind = iota
	MsgKindLockTokens
	MsgKindSupply
	MsgKindBorrow
	MsgKindLiquidate
	MsgKindDelegate
	MsgKindVote
)

var msgKinds = map[string]MsgKind{
	"osmosis/lockup/lock-tokens":             MsgKindLockTokens,
	"umee/leverage/MsgSupplyCollateral":      MsgKindSupply,
	"umee/leverage/MsgSupply":                MsgKindSupply,
	"umee/leverage/MsgMaxWithdraw":           MsgKindSupply,
	"umee/leverage/MsgWithdraw":              MsgKindSupply,
	"umee/leverage/MsgCollateralize":         MsgKindBorrow,
	"umee/leverage/MsgDecollateralize":       MsgKindBorrow,
	"umee/leverage/MsgBorrow":                MsgKindBorrow,
	"umee/leverage/MsgRepay":                 MsgKindBorrow,
	"umee/leverage/MsgMaxBorrow":             MsgKindBorrow,
	"umee/leverage/MsgLiquidate":             MsgKindLiquidate,
	"cosmos-sdk/MsgDelegate":                 MsgKindDelegate,
	"cosmos-sdk/MsgWithdrawDelegationReward": MsgKindDelegate,
	"cosmos-sdk/MsgVote":                     MsgKindVote,
}

func KindOf(msgType string) MsgKind {
	return msgKinds[msgType]
}

func (k MsgKind) SignerField() string {
	switch k {
	case MsgKindLockTokens:
		return "owner"
	case MsgKindSupply:
		return "supplier"
	case MsgKindBorrow:
		return "borrower"
	case MsgKindLiquidate:
		return "liquidator"
	case MsgKindDelegate:
		return "delegator_address"
	case MsgKindVote:
		return "voter"
	default:
		return defaultSignerField
	}
}

const defaultSignerField = "sender"

// SignerAddress reads the signer of msg from the field its kind uses and falls back to sender when that field is
// absent. Empty when neither is set.
func SignerAddress(msg Msg) string {
	field := KindOf(msg.Type).SignerField()
	if v := gjson.GetBytes(msg.Value, field).String(); v != "" || field == defaultSignerField {
		return v
	}
	return gjson.GetBytes(msg.Value, defaultSignerField).String()
}
