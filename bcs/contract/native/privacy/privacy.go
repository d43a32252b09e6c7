// Package privacy implements ZkPrivacy, a shielded note pool. Deposits add
// note commitments, transfers spend a note by revealing its nullifier and
// proving with Groth16 over bn256 that it belongs to the pool.
package privacy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/xuperchain/xnative/bcs/contract/native/base"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/native"
)

const ContractName = "privacy"

// gas schedule
const (
	DecodeWordGas      uint64 = 3
	ReadGas            uint64 = 200
	WriteGas           uint64 = 20000
	PairingBaseGas     uint64 = 45000
	PairingPerPointGas uint64 = 34000
	// VerifyGas is charged in full before a proof is checked
	VerifyGas = PairingBaseGas + 4*PairingPerPointGas
)

const abiDefinition = `[
	{"type":"function","name":"deposit","stateMutability":"payable",
	 "inputs":[{"name":"commitment","type":"bytes32"}],"outputs":[{"name":"index","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"proof","type":"bytes"},{"name":"nullifier","type":"bytes32"},{"name":"commitment","type":"bytes32"}],
	 "outputs":[{"name":"index","type":"uint256"}]},
	{"type":"function","name":"isSpent","stateMutability":"view",
	 "inputs":[{"name":"nullifier","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"commitmentCount","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Deposit","anonymous":false,
	 "inputs":[{"name":"commitment","type":"bytes32","indexed":true},{"name":"index","type":"uint256","indexed":false}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"nullifier","type":"bytes32","indexed":true},{"name":"commitment","type":"bytes32","indexed":true},
	           {"name":"index","type":"uint256","indexed":false}]}
]`

// ABI of the contract
var ABI = base.MustParseABI(abiDefinition)

var (
	countSlot = base.Slot("privacy.commitments")
	one       = common.BigToHash(big.NewInt(1))
)

func init() {
	native.RegisterDescriptor(native.Descriptor{
		Name:    ContractName,
		Address: xaddress.ZkPrivacyAddress,
		Feature: native.FeaturePrivateTx,
		New:     New,
	})
}

// ZkPrivacy is both the prototype and the per call instance.
type ZkPrivacy struct {
	// immutable, shared by every instance
	vk *VerifyingKey

	ctx *base.Context
}

var _ native.Contract = (*ZkPrivacy)(nil)

// New builds the prototype from the privacy section of cfg. The verifying
// key is mandatory.
func New(cfg *native.Config) (native.Contract, error) {
	var conf Config
	if err := cfg.DecodeContract(ContractName, &conf); err != nil {
		return nil, err
	}
	if len(conf.VerifyingKey.Alpha) == 0 {
		return nil, errors.New("privacy verifying key not configured")
	}
	vk, err := ParseVerifyingKey(&conf.VerifyingKey)
	if err != nil {
		return nil, err
	}
	return &ZkPrivacy{vk: vk}, nil
}

// NewWithKey builds the prototype from a parsed verifying key.
func NewWithKey(vk *VerifyingKey) *ZkPrivacy {
	return &ZkPrivacy{vk: vk}
}

func (z *ZkPrivacy) Name() string {
	return ContractName
}

func (z *ZkPrivacy) Create() native.Contract {
	return &ZkPrivacy{vk: z.vk}
}

func (z *ZkPrivacy) Exec(params *native.ExecParams, state native.DataProvider) (*native.InterpreterResult, error) {
	z.ctx = base.NewContext(params, state)
	method, args, err := z.ctx.Decode(&ABI, DecodeWordGas)
	if err != nil {
		return nil, err
	}
	if !method.IsConstant() && params.ReadOnly {
		return z.ctx.Revert(method.Name + " in static call")
	}
	if !method.IsPayable() && params.Value != nil && params.Value.Sign() != 0 {
		return z.ctx.Revert(method.Name + " is not payable")
	}

	switch method.Name {
	case "deposit":
		return z.deposit(method, args[0].([32]byte))
	case "transfer":
		return z.transfer(method, args[0].([]byte), args[1].([32]byte), args[2].([32]byte))
	case "isSpent":
		if err := z.ctx.Meter.Consume(ReadGas); err != nil {
			return nil, err
		}
		return z.ctx.Return(method, z.ctx.Load(nullifierSlot(args[0].([32]byte))) != common.Hash{})
	case "commitmentCount":
		if err := z.ctx.Meter.Consume(ReadGas); err != nil {
			return nil, err
		}
		return z.ctx.Return(method, z.ctx.Load(countSlot).Big())
	}
	return nil, z.ctx.Meter.Fail("method %s not implemented", method.Name)
}

func (z *ZkPrivacy) deposit(method *abi.Method, commitment [32]byte) (*native.InterpreterResult, error) {
	if commitment == ([32]byte{}) {
		return z.ctx.Revert("empty commitment")
	}
	if err := z.ctx.Meter.Consume(ReadGas); err != nil {
		return nil, err
	}
	if z.ctx.Load(commitmentSlot(commitment)) != (common.Hash{}) {
		return z.ctx.Revert("commitment exists")
	}
	index, err := z.addCommitment(commitment)
	if err != nil {
		return nil, err
	}
	data, err := ABI.Events["Deposit"].Inputs.NonIndexed().Pack(index)
	if err != nil {
		return nil, z.ctx.Meter.Fail("pack Deposit: %v", err)
	}
	z.ctx.Emit(ABI.Events["Deposit"], []common.Hash{commitment}, data)
	return z.ctx.Return(method, index)
}

func (z *ZkPrivacy) transfer(method *abi.Method, rawProof []byte, nullifier, commitment [32]byte) (*native.InterpreterResult, error) {
	meter := z.ctx.Meter
	if err := meter.Consume(2 * ReadGas); err != nil {
		return nil, err
	}
	if z.ctx.Load(nullifierSlot(nullifier)) != (common.Hash{}) {
		return z.ctx.Revert("nullifier spent")
	}
	if commitment == ([32]byte{}) || z.ctx.Load(commitmentSlot(commitment)) != (common.Hash{}) {
		return z.ctx.Revert("bad output commitment")
	}

	if err := meter.Consume(VerifyGas); err != nil {
		return nil, err
	}
	proof, err := ParseProof(rawProof)
	if err != nil {
		return nil, meter.Fail("%v", err)
	}
	inputs := []*big.Int{
		new(big.Int).SetBytes(nullifier[:]),
		new(big.Int).SetBytes(commitment[:]),
	}
	ok, err := z.vk.Verify(proof, inputs)
	if err != nil {
		return nil, meter.Fail("%v", err)
	}
	if !ok {
		return nil, meter.Fail("proof rejected")
	}

	if err := meter.Consume(WriteGas); err != nil {
		return nil, err
	}
	z.ctx.Store(nullifierSlot(nullifier), one)
	index, err := z.addCommitment(commitment)
	if err != nil {
		return nil, err
	}
	data, err := ABI.Events["Transfer"].Inputs.NonIndexed().Pack(index)
	if err != nil {
		return nil, meter.Fail("pack Transfer: %v", err)
	}
	z.ctx.Emit(ABI.Events["Transfer"], []common.Hash{nullifier, commitment}, data)
	return z.ctx.Return(method, index)
}

// addCommitment appends commitment to the pool and returns its index.
func (z *ZkPrivacy) addCommitment(commitment [32]byte) (*big.Int, error) {
	if err := z.ctx.Meter.Consume(ReadGas + 3*WriteGas); err != nil {
		return nil, err
	}
	count := z.ctx.Load(countSlot).Big()
	z.ctx.Store(commitmentSlot(commitment), one)
	z.ctx.Store(base.Offset(base.Slot("privacy.commitments.data"), count.Uint64()), commitment)
	next := new(big.Int).Add(count, big.NewInt(1))
	z.ctx.Store(countSlot, common.BigToHash(next))
	return count, nil
}

func nullifierSlot(n [32]byte) common.Hash {
	return base.Slot("privacy.nullifier", n[:])
}

func commitmentSlot(c [32]byte) common.Hash {
	return base.Slot("privacy.commitment", c[:])
}
