package crosschain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/xuperchain/xnative/kernel/native"
)

// ChainConfig describes a trusted source chain.
type ChainConfig struct {
	ChainID    uint64           `mapstructure:"chainId"`
	Validators []common.Address `mapstructure:"validators"`
	// Quorum defaults to 2n/3+1
	Quorum int `mapstructure:"quorum"`
}

type Config struct {
	Chains []ChainConfig `mapstructure:"chains"`
}

type trustedChain struct {
	validators []common.Address
	members    map[common.Address]struct{}
	quorum     int
}

func loadChains(cfg *native.Config) (map[uint64]*trustedChain, error) {
	var conf Config
	if err := cfg.DecodeContract(ContractName, &conf); err != nil {
		return nil, err
	}
	return buildChains(conf.Chains)
}

func buildChains(confs []ChainConfig) (map[uint64]*trustedChain, error) {
	chains := make(map[uint64]*trustedChain, len(confs))
	for _, c := range confs {
		if _, dup := chains[c.ChainID]; dup {
			return nil, errors.Errorf("chain %d configured twice", c.ChainID)
		}
		if len(c.Validators) == 0 {
			return nil, errors.Errorf("chain %d has no validator", c.ChainID)
		}
		tc := &trustedChain{
			members: make(map[common.Address]struct{}, len(c.Validators)),
			quorum:  c.Quorum,
		}
		for _, v := range c.Validators {
			if _, dup := tc.members[v]; dup {
				return nil, errors.Errorf("chain %d validator %s listed twice", c.ChainID, v.Hex())
			}
			tc.members[v] = struct{}{}
			tc.validators = append(tc.validators, v)
		}
		n := len(tc.validators)
		if tc.quorum == 0 {
			tc.quorum = 2*n/3 + 1
		}
		if tc.quorum < 0 || tc.quorum > n {
			return nil, errors.Errorf("chain %d quorum %d out of range [1,%d]", c.ChainID, tc.quorum, n)
		}
		chains[c.ChainID] = tc
	}
	return chains, nil
}
