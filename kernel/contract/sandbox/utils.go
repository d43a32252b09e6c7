package sandbox

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// storageKeyLen is the length of a raw storage key: address followed by slot
const storageKeyLen = common.AddressLength + common.HashLength

func makeStorageKey(addr common.Address, slot common.Hash) []byte {
	k := make([]byte, 0, storageKeyLen)
	k = append(k, addr[:]...)
	return append(k, slot[:]...)
}

func parseStorageKey(rawKey []byte) (common.Address, common.Hash, error) {
	if len(rawKey) != storageKeyLen {
		return common.Address{}, common.Hash{}, fmt.Errorf("parseStorageKey failed, invalid raw key:%x", rawKey)
	}
	return common.BytesToAddress(rawKey[:common.AddressLength]),
		common.BytesToHash(rawKey[common.AddressLength:]), nil
}

// storagePrefixEnd returns the first raw key after every slot of addr.
func storagePrefixEnd(addr common.Address) []byte {
	end := makeStorageKey(addr, common.Hash{})
	for i := common.AddressLength - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func compareBytes(k1, k2 []byte) int {
	if len(k1) == 0 && len(k2) == 0 {
		return 0
	}
	// nil means the end of an iterator
	if k1 == nil {
		return 1
	}
	if k2 == nil {
		return -1
	}
	return bytes.Compare(k1, k2)
}

func treeCompare(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}
