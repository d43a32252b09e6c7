package all

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xuperchain/xnative/bcs/contract/native/crosschain"
	"github.com/xuperchain/xnative/bcs/contract/native/storage"
	"github.com/xuperchain/xnative/kernel/common/xaddress"
	"github.com/xuperchain/xnative/kernel/contract/sandbox"
	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/kernel/native/dispatch"
)

func TestDefaultRegistry(t *testing.T) {
	f, err := native.NewDefaultFactory(native.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{
		xaddress.CrossChainVerifyAddress,
		xaddress.SimpleStorageAddress,
	}, f.Addresses())
	assert.Nil(t, f.NewContract(xaddress.ZkPrivacyAddress))
	assert.Equal(t, "storage", native.NameOf(f.NewContract(xaddress.SimpleStorageAddress)))

	// privatetx without a verifying key can not build the registry
	cfg := native.DefaultConfig()
	cfg.Features = []string{native.FeaturePrivateTx}
	_, err = native.NewDefaultFactory(cfg)
	assert.Error(t, err)

	for _, desc := range native.Descriptors() {
		assert.True(t, xaddress.IsReserved(desc.Address), desc.Name)
	}
}

// A well formed proof whose signatures do not verify fails with an internal
// error, is charged the declared verification cost and leaves state alone.
func TestCrossChainInvalidProofScenario(t *testing.T) {
	keys := make([]*ecdsa.PrivateKey, 3)
	validators := make([]interface{}, 3)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		validators[i] = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	cfg := native.DefaultConfig()
	cfg.Contracts["crosschain"] = map[string]interface{}{
		"chains": []interface{}{
			map[string]interface{}{"chainId": 5, "validators": validators},
		},
	}
	f, err := native.NewDefaultFactory(cfg)
	require.NoError(t, err)
	d := dispatch.New(f, nil)

	caller := common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	txs := []crosschain.Tx{{Sender: common.HexToAddress("0x5e1"), To: caller, Data: []byte("payload")}}
	// signed by keys the chain does not trust
	var forged []*ecdsa.PrivateKey
	for range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		forged = append(forged, key)
	}
	proof, err := crosschain.BuildProof(5, 1, txs, 0, forged)
	require.NoError(t, err)
	raw, err := crosschain.EncodeProof(proof)
	require.NoError(t, err)
	input, err := crosschain.ABI.Pack("verifyTransaction", raw)
	require.NoError(t, err)

	state := sandbox.NewMemState()
	state.AddBalance(caller, big.NewInt(1000))
	before := state.Dump()

	res, handled := d.Call(&native.ExecParams{
		Address: xaddress.CrossChainVerifyAddress,
		Caller:  caller,
		Data:    input,
		Gas:     200000,
	}, state)
	require.True(t, handled)
	assert.True(t, errors.Is(res.Err, native.ErrInternal))
	assert.Equal(t, crosschain.VerificationGas(len(input), len(forged), len(proof.Branch)), res.UsedGas)
	assert.Equal(t, before, state.Dump())

	// the same proof signed by the validators goes through
	proof, err = crosschain.BuildProof(5, 1, txs, 0, keys)
	require.NoError(t, err)
	raw, err = crosschain.EncodeProof(proof)
	require.NoError(t, err)
	input, err = crosschain.ABI.Pack("verifyTransaction", raw)
	require.NoError(t, err)
	res, handled = d.Call(&native.ExecParams{
		Address: xaddress.CrossChainVerifyAddress,
		Caller:  caller,
		Data:    input,
		Gas:     200000,
	}, state)
	require.True(t, handled)
	require.NoError(t, res.Err)
	vals, err := crosschain.ABI.Unpack("verifyTransaction", res.Return())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), vals[1].([]byte))
}

// Lanes running the same calls on their own state never interfere and end
// with identical results.
func TestParallelLanes(t *testing.T) {
	f, err := native.NewDefaultFactory(native.DefaultConfig())
	require.NoError(t, err)
	d := dispatch.New(f, nil)

	var inputs [][]byte
	for i := int64(0); i < 20; i++ {
		input, err := storage.ABI.Pack("pushArray", big.NewInt(i))
		require.NoError(t, err)
		inputs = append(inputs, input)
		input, err = storage.ABI.Pack("incUint", big.NewInt(i))
		require.NoError(t, err)
		inputs = append(inputs, input)
	}

	const lanes = 8
	roots := make([]common.Hash, lanes)
	used := make([]uint64, lanes)
	var g errgroup.Group
	for lane := 0; lane < lanes; lane++ {
		lane := lane
		g.Go(func() error {
			state := sandbox.NewMemState()
			for _, input := range inputs {
				res, handled := d.Call(&native.ExecParams{
					Address: xaddress.SimpleStorageAddress,
					Data:    input,
					Gas:     100000,
				}, state)
				if !handled {
					return errors.New("storage not registered")
				}
				if res.Err != nil {
					return res.Err
				}
				used[lane] += res.UsedGas
			}
			roots[lane] = state.Root()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for lane := 1; lane < lanes; lane++ {
		assert.Equal(t, roots[0], roots[lane])
		assert.Equal(t, used[0], used[lane])
	}
}
