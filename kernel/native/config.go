package native

import (
	"fmt"
	"reflect"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// FeaturePrivateTx enables the zk privacy contract.
	FeaturePrivateTx = "privatetx"
)

// Config selects and configures the native contract set of a network. It must
// be identical on every node of the network.
type Config struct {
	// Features lists the optional contract groups compiled into the registry
	Features []string `yaml:"features,omitempty" mapstructure:"features"`
	// EnableDebugLog turns on per call debug logging in the dispatcher
	EnableDebugLog bool `yaml:"enableDebugLog,omitempty" mapstructure:"enableDebugLog"`
	// Contracts holds the raw per contract section, keyed by lower case
	// contract name
	Contracts map[string]interface{} `yaml:"contracts,omitempty" mapstructure:"contracts"`
}

func DefaultConfig() *Config {
	return &Config{
		Features:  []string{},
		Contracts: make(map[string]interface{}),
	}
}

// LoadConfig reads a native contract config file.
func LoadConfig(fname string) (*Config, error) {
	viperObj := viper.New()
	viperObj.SetConfigFile(fname)
	if err := viperObj.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config failed.path:%s", fname)
	}

	cfg := DefaultConfig()
	if err := viperObj.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config failed.path:%s", fname)
	}
	return cfg, nil
}

// FeatureSet returns the enabled features.
func (c *Config) FeatureSet() mapset.Set[string] {
	set := mapset.NewSet[string]()
	if c == nil {
		return set
	}
	for _, f := range c.Features {
		set.Add(strings.ToLower(strings.TrimSpace(f)))
	}
	return set
}

// Enabled reports whether feature is switched on. The empty feature is
// always enabled.
func (c *Config) Enabled(feature string) bool {
	if feature == "" {
		return true
	}
	return c.FeatureSet().Contains(strings.ToLower(feature))
}

// DecodeContract decodes the section of contract name into out. A missing
// section leaves out untouched.
func (c *Config) DecodeContract(name string, out interface{}) error {
	if c == nil || c.Contracts == nil {
		return nil
	}
	raw, ok := c.Contracts[strings.ToLower(name)]
	if !ok {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(hexDecodeHook),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "new config decoder failed")
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.Wrapf(err, "decode config of %s failed", name)
	}
	return nil
}

var (
	addressType = reflect.TypeOf(common.Address{})
	hashType    = reflect.TypeOf(common.Hash{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

// hexDecodeHook turns 0x prefixed strings into addresses, hashes and bytes.
func hexDecodeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(reflect.ValueOf(data).String())
	switch to {
	case addressType:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	case hashType:
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("invalid hash %q", s)
		}
		return common.BytesToHash(b), nil
	case bytesType:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q", s)
		}
		return b, nil
	}
	return data, nil
}
