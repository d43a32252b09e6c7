package crosschain

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Header is the part of a source chain block that validators sign.
type Header struct {
	ChainID uint64
	Height  uint64
	TxRoot  common.Hash
}

// Tx is a source chain transaction addressed to a contract of this chain.
type Tx struct {
	Sender   common.Address
	To       common.Address
	Selector [4]byte
	Nonce    uint64
	Data     []byte
}

// Proof shows that Tx is included in the block of Header and that the block
// was signed by a quorum of the source chain validators.
type Proof struct {
	Header     Header
	Tx         Tx
	Branch     []common.Hash
	Index      uint64
	Signatures [][]byte
}

// Hash is the digest validators sign.
func (h *Header) Hash() (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Leaf is the merkle leaf of tx.
func (tx *Tx) Leaf() (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

func EncodeProof(p *Proof) ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

func DecodeProof(data []byte) (*Proof, error) {
	p := new(Proof)
	if err := rlp.DecodeBytes(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func hashPair(a, b common.Hash) common.Hash {
	return crypto.Keccak256Hash(a[:], b[:])
}

// FoldBranch folds leaf with branch. Bit i of index tells whether the node
// at level i is a right child.
func FoldBranch(leaf common.Hash, branch []common.Hash, index uint64) (common.Hash, bool) {
	if len(branch) < 64 && index>>uint(len(branch)) != 0 {
		return common.Hash{}, false
	}
	node := leaf
	for i, sibling := range branch {
		if index>>uint(i)&1 == 1 {
			node = hashPair(sibling, node)
		} else {
			node = hashPair(node, sibling)
		}
	}
	return node, true
}

// MerkleRoot builds the root over leaves, an odd node at any level is paired
// with itself.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// MerkleBranch returns the sibling path of leaves[index].
func MerkleBranch(leaves []common.Hash, index int) ([]common.Hash, error) {
	if index < 0 || index >= len(leaves) {
		return nil, errors.Errorf("leaf index %d out of range", index)
	}
	var branch []common.Hash
	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		branch = append(branch, level[sibling])
		level = nextLevel(level)
		index /= 2
	}
	return branch, nil
}

func nextLevel(level []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		right := level[i]
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, hashPair(level[i], right))
	}
	return next
}

// SignHeader signs the header digest with a validator key.
func SignHeader(h *Header, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := h.Hash()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest[:], key)
}

// BuildProof assembles the proof of txs[index] in a block of chainID at
// height signed by keys.
func BuildProof(chainID, height uint64, txs []Tx, index int, keys []*ecdsa.PrivateKey) (*Proof, error) {
	leaves := make([]common.Hash, len(txs))
	for i := range txs {
		leaf, err := txs[i].Leaf()
		if err != nil {
			return nil, errors.Wrap(err, "hash tx failed")
		}
		leaves[i] = leaf
	}
	branch, err := MerkleBranch(leaves, index)
	if err != nil {
		return nil, err
	}
	p := &Proof{
		Header: Header{ChainID: chainID, Height: height, TxRoot: MerkleRoot(leaves)},
		Tx:     txs[index],
		Branch: branch,
		Index:  uint64(index),
	}
	for _, key := range keys {
		sig, err := SignHeader(&p.Header, key)
		if err != nil {
			return nil, errors.Wrap(err, "sign header failed")
		}
		p.Signatures = append(p.Signatures, sig)
	}
	return p, nil
}
