package xaddress

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Reserved addresses of native contracts. They are agreed network-wide and
// changing any of them is a hard fork.
const (
	NativeCrossChainVerify = "0xffffffffffffffffffffffffffffffffff030001"
	NativeSimpleStorage    = "0xffffffffffffffffffffffffffffffffff030002"
	NativeZkPrivacy        = "0xffffffffffffffffffffffffffffffffff030003"
)

// reservedPrefix is shared by every native contract address. Accounts and
// contracts created through transactions are keccak derived and can not hit
// this 17-byte prefix in practice.
var reservedPrefix = common.FromHex("0xffffffffffffffffffffffffffffffffff")

var (
	CrossChainVerifyAddress = common.HexToAddress(NativeCrossChainVerify)
	SimpleStorageAddress    = common.HexToAddress(NativeSimpleStorage)
	ZkPrivacyAddress        = common.HexToAddress(NativeZkPrivacy)
)

// IsReserved reports whether addr lies in the native contract range.
func IsReserved(addr common.Address) bool {
	return bytes.HasPrefix(addr.Bytes(), reservedPrefix)
}

// Reserved returns every well-known native contract address.
func Reserved() []common.Address {
	return []common.Address{
		CrossChainVerifyAddress,
		SimpleStorageAddress,
		ZkPrivacyAddress,
	}
}
