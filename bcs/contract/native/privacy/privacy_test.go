package privacy

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto/bn256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xnative/bcs/contract/native/base"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/contract/sandbox"
	"github.com/xuperchain/xnative/kernel/native"
)

// testKey is a verifying key whose ic points are all at infinity, so that
// A = alpha, B = beta, C = infinity is a valid proof for any input.
func testKey() *VerifyingKeyConfig {
	g1 := func(k int64) []byte { return new(bn256.G1).ScalarBaseMult(big.NewInt(k)).Marshal() }
	g2 := func(k int64) []byte { return new(bn256.G2).ScalarBaseMult(big.NewInt(k)).Marshal() }
	inf := make([]byte, g1Size)
	return &VerifyingKeyConfig{
		Alpha: g1(3),
		Beta:  g2(5),
		Gamma: g2(7),
		Delta: g2(11),
		IC:    [][]byte{inf, inf, inf},
	}
}

func validProof(conf *VerifyingKeyConfig) []byte {
	proof := append([]byte{}, conf.Alpha...)
	proof = append(proof, conf.Beta...)
	return append(proof, make([]byte, g1Size)...)
}

func invalidProof(conf *VerifyingKeyConfig) []byte {
	proof := new(bn256.G1).ScalarBaseMult(big.NewInt(4)).Marshal()
	proof = append(proof, conf.Beta...)
	return append(proof, make([]byte, g1Size)...)
}

type env struct {
	t     *testing.T
	proto *ZkPrivacy
	state *sandbox.MemState
}

func newEnv(t *testing.T) *env {
	vk, err := ParseVerifyingKey(testKey())
	require.NoError(t, err)
	return &env{t: t, proto: NewWithKey(vk), state: sandbox.NewMemState()}
}

func (e *env) exec(value *big.Int, method string, args ...interface{}) (*native.InterpreterResult, error) {
	input, err := ABI.Pack(method, args...)
	require.NoError(e.t, err)
	return e.proto.Create().Exec(&native.ExecParams{
		Address: xaddress.ZkPrivacyAddress,
		Caller:  common.HexToAddress("0x01"),
		Data:    input,
		Gas:     1000000,
		Value:   value,
	}, e.state)
}

func (e *env) call(method string, args ...interface{}) []interface{} {
	res, err := e.exec(nil, method, args...)
	require.NoError(e.t, err)
	require.False(e.t, res.Reverted)
	vals, err := ABI.Unpack(method, res.Output)
	require.NoError(e.t, err)
	return vals
}

func (e *env) revert(method string, args ...interface{}) string {
	res, err := e.exec(nil, method, args...)
	require.NoError(e.t, err)
	require.True(e.t, res.Reverted)
	reason, _ := base.DecodeRevert(res.Output)
	return reason
}

func hash(b byte) [32]byte {
	var h [32]byte
	h[31] = b
	return h
}

func TestDepositAndTransfer(t *testing.T) {
	e := newEnv(t)
	conf := testKey()

	res, err := e.exec(big.NewInt(10), "deposit", hash(1))
	require.NoError(t, err)
	require.False(t, res.Reverted)
	assert.Equal(t, int64(1), e.call("commitmentCount")[0].(*big.Int).Int64())
	assert.Contains(t, e.revert("deposit", hash(1)), "exists")
	assert.Contains(t, e.revert("deposit", [32]byte{}), "empty")

	vals := e.call("transfer", validProof(conf), hash(9), hash(2))
	assert.Equal(t, int64(1), vals[0].(*big.Int).Int64())
	assert.True(t, e.call("isSpent", hash(9))[0].(bool))
	assert.False(t, e.call("isSpent", hash(8))[0].(bool))
	assert.Equal(t, int64(2), e.call("commitmentCount")[0].(*big.Int).Int64())

	// double spend
	assert.Contains(t, e.revert("transfer", validProof(conf), hash(9), hash(3)), "spent")
	// output commitment reuse
	assert.Contains(t, e.revert("transfer", validProof(conf), hash(7), hash(2)), "commitment")

	logs := e.state.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, ABI.Events["Deposit"].ID, logs[0].Topics[0])
	assert.Equal(t, ABI.Events["Transfer"].ID, logs[1].Topics[0])
	assert.Equal(t, common.Hash(hash(9)), logs[1].Topics[1])
}

func TestTransferRejectsBadProof(t *testing.T) {
	e := newEnv(t)
	conf := testKey()
	before := e.state.Dump()

	tests := []struct {
		name      string
		proof     []byte
		nullifier [32]byte
	}{
		{name: "wrong pairing", proof: invalidProof(conf), nullifier: hash(1)},
		{name: "short proof", proof: validProof(conf)[:100], nullifier: hash(1)},
		{name: "point off curve", proof: append([]byte{1}, validProof(conf)[1:]...), nullifier: hash(1)},
		{name: "input above field", proof: validProof(conf), nullifier: [32]byte{0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := ABI.Pack("transfer", tt.proof, tt.nullifier, hash(2))
			require.NoError(t, err)
			res, err := e.exec(nil, "transfer", tt.proof, tt.nullifier, hash(2))
			assert.Nil(t, res)
			ne, ok := native.AsNativeError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, native.KindInternal, ne.Kind)
			want := native.WordGas(len(input), DecodeWordGas) + 2*ReadGas + VerifyGas
			assert.Equal(t, want, ne.GasUsed)
			assert.Equal(t, before, e.state.Dump())
		})
	}
}

func TestStaticAndValue(t *testing.T) {
	e := newEnv(t)
	res, err := e.proto.Create().Exec(&native.ExecParams{
		Address:  xaddress.ZkPrivacyAddress,
		Data:     mustPack(t, "deposit", hash(1)),
		Gas:      100000,
		ReadOnly: true,
	}, e.state)
	require.NoError(t, err)
	assert.True(t, res.Reverted)

	res, err = e.exec(big.NewInt(1), "transfer", validProof(testKey()), hash(1), hash(2))
	require.NoError(t, err)
	assert.True(t, res.Reverted)
	reason, _ := base.DecodeRevert(res.Output)
	assert.Contains(t, reason, "payable")
}

func mustPack(t *testing.T, method string, args ...interface{}) []byte {
	input, err := ABI.Pack(method, args...)
	require.NoError(t, err)
	return input
}

func TestNewFromConfig(t *testing.T) {
	conf := testKey()
	ic := make([]interface{}, len(conf.IC))
	for i, p := range conf.IC {
		ic[i] = hexutil.Encode(p)
	}
	cfg := native.DefaultConfig()
	cfg.Features = []string{native.FeaturePrivateTx}
	cfg.Contracts["privacy"] = map[string]interface{}{
		"verifyingKey": map[string]interface{}{
			"alpha": hexutil.Encode(conf.Alpha),
			"beta":  hexutil.Encode(conf.Beta),
			"gamma": hexutil.Encode(conf.Gamma),
			"delta": hexutil.Encode(conf.Delta),
			"ic":    ic,
		},
	}
	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, ContractName, native.NameOf(c))

	_, err = New(native.DefaultConfig())
	assert.Error(t, err)

	bad := *conf
	bad.IC = bad.IC[:2]
	_, err = ParseVerifyingKey(&bad)
	assert.Error(t, err)
}

func TestVerifyInputCount(t *testing.T) {
	vk, err := ParseVerifyingKey(testKey())
	require.NoError(t, err)
	proof, err := ParseProof(validProof(testKey()))
	require.NoError(t, err)

	ok, err := vk.Verify(proof, []*big.Int{big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = vk.Verify(proof, []*big.Int{big.NewInt(1)})
	assert.True(t, err != nil && !errors.Is(err, native.ErrInternal))
}

// bindingSecrets are the discrete logs behind boundKey.
var bindingSecrets = struct {
	a, b, g, d, c int64
	ic            [NumInputs + 1]int64
}{a: 3, b: 5, g: 7, d: 11, c: 13, ic: [NumInputs + 1]int64{17, 19, 23}}

// boundKey has ic_i = k_i*G1, so vk_x depends on every public input.
func boundKey() *VerifyingKeyConfig {
	s := bindingSecrets
	g1 := func(k int64) []byte { return new(bn256.G1).ScalarBaseMult(big.NewInt(k)).Marshal() }
	g2 := func(k int64) []byte { return new(bn256.G2).ScalarBaseMult(big.NewInt(k)).Marshal() }
	conf := &VerifyingKeyConfig{Alpha: g1(s.a), Beta: g2(s.b), Gamma: g2(s.g), Delta: g2(s.d)}
	for _, k := range s.ic {
		conf.IC = append(conf.IC, g1(k))
	}
	return conf
}

// boundProof is A = (ab + (k0 + x1*k1 + x2*k2)g + cd)*G1, B = G2, C = c*G1.
func boundProof(nullifier, commitment [32]byte) []byte {
	s := bindingSecrets
	x := new(big.Int).SetInt64(s.ic[0])
	for i, in := range [][32]byte{nullifier, commitment} {
		term := new(big.Int).SetBytes(in[:])
		term.Mul(term, big.NewInt(s.ic[i+1]))
		x.Add(x, term)
	}
	exp := new(big.Int).Mul(x, big.NewInt(s.g))
	exp.Add(exp, big.NewInt(s.a*s.b+s.c*s.d))
	exp.Mod(exp, scalarOrder)

	proof := new(bn256.G1).ScalarBaseMult(exp).Marshal()
	proof = append(proof, new(bn256.G2).ScalarBaseMult(big.NewInt(1)).Marshal()...)
	return append(proof, new(bn256.G1).ScalarBaseMult(big.NewInt(s.c)).Marshal()...)
}

func TestVerifyBindsInputs(t *testing.T) {
	vk, err := ParseVerifyingKey(boundKey())
	require.NoError(t, err)
	proof, err := ParseProof(boundProof(hash(4), hash(5)))
	require.NoError(t, err)

	tests := []struct {
		name   string
		inputs [2][32]byte
		ok     bool
	}{
		{name: "matching inputs", inputs: [2][32]byte{hash(4), hash(5)}, ok: true},
		{name: "other nullifier", inputs: [2][32]byte{hash(6), hash(5)}},
		{name: "other commitment", inputs: [2][32]byte{hash(4), hash(6)}},
		{name: "swapped", inputs: [2][32]byte{hash(5), hash(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := vk.Verify(proof, []*big.Int{
				new(big.Int).SetBytes(tt.inputs[0][:]),
				new(big.Int).SetBytes(tt.inputs[1][:]),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTransferBindsInputs(t *testing.T) {
	vk, err := ParseVerifyingKey(boundKey())
	require.NoError(t, err)
	e := &env{t: t, proto: NewWithKey(vk), state: sandbox.NewMemState()}
	proof := boundProof(hash(4), hash(5))

	_, err = e.exec(nil, "transfer", proof, hash(6), hash(5))
	assert.True(t, errors.Is(err, native.ErrInternal), "got %v", err)
	assert.False(t, e.call("isSpent", hash(6))[0].(bool))

	vals := e.call("transfer", proof, hash(4), hash(5))
	assert.Equal(t, int64(0), vals[0].(*big.Int).Int64())
	assert.True(t, e.call("isSpent", hash(4))[0].(bool))
}
