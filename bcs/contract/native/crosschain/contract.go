// Package crosschain implements the cross chain verify native contract. It
// checks that a transaction of a trusted source chain was signed off by a
// quorum of its validators and hands the payload to the target contract
// exactly once.
package crosschain

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xuperchain/xnative/bcs/contract/native/base"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/native"
)

const ContractName = "crosschain"

// gas schedule
const (
	DecodeWordGas  uint64 = 3
	VerifyBaseGas  uint64 = 5000
	SigGas         uint64 = 3000
	BranchGas      uint64 = 36
	NonceReadGas   uint64 = 200
	NonceWriteGas  uint64 = 5000
	ValidatorGas   uint64 = 50
	MaxSignatures         = 256
	MaxBranchDepth        = 64
)

const abiDefinition = `[
	{"type":"function","name":"verifyTransaction","stateMutability":"nonpayable",
	 "inputs":[{"name":"proof","type":"bytes"}],
	 "outputs":[{"name":"sender","type":"address"},{"name":"data","type":"bytes"}]},
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"chainId","type":"uint64"},{"name":"sender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getValidators","stateMutability":"view",
	 "inputs":[{"name":"chainId","type":"uint64"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"event","name":"Verified","anonymous":false,
	 "inputs":[{"name":"chainId","type":"uint64","indexed":true},
	           {"name":"sender","type":"address","indexed":true},
	           {"name":"nonce","type":"uint64","indexed":false}]}
]`

// ABI of the contract
var ABI = base.MustParseABI(abiDefinition)

func init() {
	native.RegisterDescriptor(native.Descriptor{
		Name:    ContractName,
		Address: xaddress.CrossChainVerifyAddress,
		New:     New,
	})
}

// CrossChainVerify is both the prototype and the per call instance.
type CrossChainVerify struct {
	// immutable, shared by every instance
	chains map[uint64]*trustedChain

	ctx *base.Context
}

var _ native.Contract = (*CrossChainVerify)(nil)

// New builds the prototype from the crosschain section of cfg.
func New(cfg *native.Config) (native.Contract, error) {
	chains, err := loadChains(cfg)
	if err != nil {
		return nil, err
	}
	return &CrossChainVerify{chains: chains}, nil
}

// NewWithChains builds the prototype from explicit chain configs.
func NewWithChains(confs []ChainConfig) (*CrossChainVerify, error) {
	chains, err := buildChains(confs)
	if err != nil {
		return nil, err
	}
	return &CrossChainVerify{chains: chains}, nil
}

func (c *CrossChainVerify) Name() string {
	return ContractName
}

func (c *CrossChainVerify) Create() native.Contract {
	return &CrossChainVerify{chains: c.chains}
}

// VerificationGas is the charge of verifyTransaction with calldataLen bytes
// of input, sigs signatures and a branch of depth nodes. Once the proof
// decodes this is charged in full whatever the outcome.
func VerificationGas(calldataLen, sigs, depth int) uint64 {
	gas := native.WordGas(calldataLen, DecodeWordGas)
	gas = native.SafeAdd(gas, VerifyBaseGas)
	gas = native.SafeAdd(gas, native.SafeMul(uint64(sigs), SigGas))
	return native.SafeAdd(gas, native.SafeMul(uint64(depth), BranchGas))
}

func (c *CrossChainVerify) Exec(params *native.ExecParams, state native.DataProvider) (*native.InterpreterResult, error) {
	c.ctx = base.NewContext(params, state)
	method, args, err := c.ctx.Decode(&ABI, DecodeWordGas)
	if err != nil {
		return nil, err
	}
	if params.Value != nil && params.Value.Sign() != 0 {
		return c.ctx.Revert("crosschain verifier is not payable")
	}

	switch method.Name {
	case "verifyTransaction":
		return c.verifyTransaction(method, args[0].([]byte))
	case "getNonce":
		return c.getNonce(method, args[0].(uint64), args[1].(common.Address))
	case "getValidators":
		return c.getValidators(method, args[0].(uint64))
	}
	return nil, c.ctx.Meter.Fail("method %s not implemented", method.Name)
}

func (c *CrossChainVerify) verifyTransaction(method *abi.Method, raw []byte) (*native.InterpreterResult, error) {
	meter := c.ctx.Meter
	if err := meter.Consume(VerifyBaseGas); err != nil {
		return nil, err
	}
	proof, err := DecodeProof(raw)
	if err != nil {
		return nil, meter.Fail("decode proof: %v", err)
	}
	if len(proof.Signatures) > MaxSignatures || len(proof.Branch) > MaxBranchDepth {
		return nil, meter.Fail("proof too large: %d signatures, branch depth %d",
			len(proof.Signatures), len(proof.Branch))
	}
	// the rest of the declared cost, charged before any crypto work
	rest := native.SafeAdd(native.SafeMul(uint64(len(proof.Signatures)), SigGas),
		native.SafeMul(uint64(len(proof.Branch)), BranchGas))
	if err := meter.Consume(rest); err != nil {
		return nil, err
	}

	chain, ok := c.chains[proof.Header.ChainID]
	if !ok {
		return nil, meter.Fail("chain %d not trusted", proof.Header.ChainID)
	}
	if err := c.checkSignatures(chain, proof); err != nil {
		return nil, err
	}
	if err := c.checkInclusion(proof); err != nil {
		return nil, err
	}
	if proof.Tx.To != c.ctx.Params.Caller {
		return nil, meter.Fail("tx sent to %s, called by %s", proof.Tx.To.Hex(), c.ctx.Params.Caller.Hex())
	}

	slot := nonceSlot(proof.Header.ChainID, proof.Tx.Sender)
	expect := c.ctx.Load(slot).Big().Uint64()
	if proof.Tx.Nonce != expect {
		return nil, meter.Fail("nonce %d, expect %d", proof.Tx.Nonce, expect)
	}
	if c.ctx.Params.ReadOnly {
		return c.ctx.Revert("verifyTransaction in static call")
	}
	if err := meter.Consume(NonceWriteGas); err != nil {
		return nil, err
	}
	c.ctx.Store(slot, common.BigToHash(new(big.Int).SetUint64(expect+1)))

	nonce := make([]byte, 32)
	binary.BigEndian.PutUint64(nonce[24:], proof.Tx.Nonce)
	c.ctx.Emit(ABI.Events["Verified"], []common.Hash{
		common.BigToHash(new(big.Int).SetUint64(proof.Header.ChainID)),
		common.BytesToHash(proof.Tx.Sender.Bytes()),
	}, nonce)

	return c.ctx.Return(method, proof.Tx.Sender, proof.Tx.Data)
}

// checkSignatures requires a quorum of distinct validators of chain.
func (c *CrossChainVerify) checkSignatures(chain *trustedChain, proof *Proof) error {
	digest, err := proof.Header.Hash()
	if err != nil {
		return c.ctx.Meter.Fail("hash header: %v", err)
	}
	signed := make(map[common.Address]struct{}, len(proof.Signatures))
	for i, sig := range proof.Signatures {
		if len(sig) != crypto.SignatureLength {
			return c.ctx.Meter.Fail("signature %d has %d bytes", i, len(sig))
		}
		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			return c.ctx.Meter.Fail("signature %d does not recover", i)
		}
		signer := crypto.PubkeyToAddress(*pub)
		if _, ok := chain.members[signer]; !ok {
			return c.ctx.Meter.Fail("signature %d not from a validator", i)
		}
		if _, dup := signed[signer]; dup {
			return c.ctx.Meter.Fail("signature %d duplicates a signer", i)
		}
		signed[signer] = struct{}{}
	}
	if len(signed) < chain.quorum {
		return c.ctx.Meter.Fail("%d signatures below quorum %d", len(signed), chain.quorum)
	}
	return nil
}

func (c *CrossChainVerify) checkInclusion(proof *Proof) error {
	leaf, err := proof.Tx.Leaf()
	if err != nil {
		return c.ctx.Meter.Fail("hash tx: %v", err)
	}
	root, ok := FoldBranch(leaf, proof.Branch, proof.Index)
	if !ok {
		return c.ctx.Meter.Fail("index %d beyond branch depth %d", proof.Index, len(proof.Branch))
	}
	if root != proof.Header.TxRoot {
		return c.ctx.Meter.Fail("tx not included in block %d", proof.Header.Height)
	}
	return nil
}

func (c *CrossChainVerify) getNonce(method *abi.Method, chainID uint64, sender common.Address) (*native.InterpreterResult, error) {
	if err := c.ctx.Meter.Consume(NonceReadGas); err != nil {
		return nil, err
	}
	nonce := c.ctx.Load(nonceSlot(chainID, sender)).Big()
	return c.ctx.Return(method, nonce)
}

func (c *CrossChainVerify) getValidators(method *abi.Method, chainID uint64) (*native.InterpreterResult, error) {
	chain, ok := c.chains[chainID]
	if !ok {
		return c.ctx.Return(method, []common.Address{})
	}
	if err := c.ctx.Meter.Consume(native.SafeMul(uint64(len(chain.validators)), ValidatorGas)); err != nil {
		return nil, err
	}
	return c.ctx.Return(method, chain.validators)
}

func nonceSlot(chainID uint64, sender common.Address) common.Hash {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], chainID)
	return base.Slot("crosschain.nonce", id[:], sender.Bytes())
}
