package privacy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto/bn256"
	"github.com/pkg/errors"
)

const (
	g1Size    = 64
	g2Size    = 128
	ProofSize = 2*g1Size + g2Size
	// NumInputs is the number of public inputs: nullifier and commitment
	NumInputs = 2
)

// scalarOrder is the order of the bn256 groups
var scalarOrder, _ = new(big.Int).SetString(
	"21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)

// VerifyingKeyConfig is the Groth16 verifying key as hex encoded points.
type VerifyingKeyConfig struct {
	Alpha []byte   `mapstructure:"alpha"`
	Beta  []byte   `mapstructure:"beta"`
	Gamma []byte   `mapstructure:"gamma"`
	Delta []byte   `mapstructure:"delta"`
	IC    [][]byte `mapstructure:"ic"`
}

type Config struct {
	VerifyingKey VerifyingKeyConfig `mapstructure:"verifyingKey"`
}

// VerifyingKey is a parsed Groth16 verifying key over bn256.
type VerifyingKey struct {
	alpha *bn256.G1
	beta  *bn256.G2
	gamma *bn256.G2
	delta *bn256.G2
	ic    []*bn256.G1
}

// Groth16Proof is a proof (A, B, C).
type Groth16Proof struct {
	A *bn256.G1
	B *bn256.G2
	C *bn256.G1
}

func unmarshalG1(data []byte) (*bn256.G1, error) {
	if len(data) != g1Size {
		return nil, errors.Errorf("g1 point has %d bytes", len(data))
	}
	p := new(bn256.G1)
	if _, err := p.Unmarshal(data); err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalG2(data []byte) (*bn256.G2, error) {
	if len(data) != g2Size {
		return nil, errors.Errorf("g2 point has %d bytes", len(data))
	}
	p := new(bn256.G2)
	if _, err := p.Unmarshal(data); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseVerifyingKey validates and parses every point of conf.
func ParseVerifyingKey(conf *VerifyingKeyConfig) (*VerifyingKey, error) {
	var (
		vk  VerifyingKey
		err error
	)
	if vk.alpha, err = unmarshalG1(conf.Alpha); err != nil {
		return nil, errors.Wrap(err, "bad alpha")
	}
	if vk.beta, err = unmarshalG2(conf.Beta); err != nil {
		return nil, errors.Wrap(err, "bad beta")
	}
	if vk.gamma, err = unmarshalG2(conf.Gamma); err != nil {
		return nil, errors.Wrap(err, "bad gamma")
	}
	if vk.delta, err = unmarshalG2(conf.Delta); err != nil {
		return nil, errors.Wrap(err, "bad delta")
	}
	if len(conf.IC) != NumInputs+1 {
		return nil, errors.Errorf("verifying key has %d ic points, want %d", len(conf.IC), NumInputs+1)
	}
	for i, raw := range conf.IC {
		p, err := unmarshalG1(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "bad ic %d", i)
		}
		vk.ic = append(vk.ic, p)
	}
	return &vk, nil
}

// ParseProof decodes A || B || C.
func ParseProof(data []byte) (*Groth16Proof, error) {
	if len(data) != ProofSize {
		return nil, errors.Errorf("proof has %d bytes, want %d", len(data), ProofSize)
	}
	a, err := unmarshalG1(data[:g1Size])
	if err != nil {
		return nil, errors.Wrap(err, "bad A")
	}
	b, err := unmarshalG2(data[g1Size : g1Size+g2Size])
	if err != nil {
		return nil, errors.Wrap(err, "bad B")
	}
	c, err := unmarshalG1(data[g1Size+g2Size:])
	if err != nil {
		return nil, errors.Wrap(err, "bad C")
	}
	return &Groth16Proof{A: a, B: b, C: c}, nil
}

// Verify checks e(A,B) = e(alpha,beta) * e(vk_x,gamma) * e(C,delta) with
// vk_x = ic[0] + sum(inputs[i] * ic[i+1]).
func (vk *VerifyingKey) Verify(proof *Groth16Proof, inputs []*big.Int) (bool, error) {
	if len(inputs) != len(vk.ic)-1 {
		return false, errors.Errorf("got %d public inputs, want %d", len(inputs), len(vk.ic)-1)
	}
	vkx := vk.ic[0]
	for i, in := range inputs {
		if in.Sign() < 0 || in.Cmp(scalarOrder) >= 0 {
			return false, errors.Errorf("public input %d not in the scalar field", i)
		}
		term := new(bn256.G1).ScalarMult(vk.ic[i+1], in)
		vkx = new(bn256.G1).Add(vkx, term)
	}
	negA := new(bn256.G1).Neg(proof.A)
	ok := bn256.PairingCheck(
		[]*bn256.G1{negA, vk.alpha, vkx, proof.C},
		[]*bn256.G2{proof.B, vk.beta, vk.gamma, vk.delta},
	)
	return ok, nil
}
