package cmd

import (
	"github.com/pkg/errors"

	// link every built-in native contract
	_ "github.com/xuperchain/xnative/bcs/contract/native/all"
	"github.com/xuperchain/xnative/kernel/native"
	"github.com/xuperchain/xnative/kernel/native/dispatch"
	"github.com/xuperchain/xnative/lib/logs"
	"github.com/xuperchain/xnative/lib/utils"
)

const DefNativeConfFile = "conf/native.yaml"

// loadNativeConf reads the native contract config. An empty path falls back
// to conf/native.yaml under XNATIVE_ROOT_PATH, then to the defaults.
func loadNativeConf(path string) (*native.Config, error) {
	if path == "" {
		path = utils.GetRootPath() + DefNativeConfFile
		if !utils.FileIsExist(path) {
			return native.DefaultConfig(), nil
		}
	}
	return native.LoadConfig(path)
}

// nativeEnv is the registry and dispatcher shared by every lane of a command.
type nativeEnv struct {
	cfg        *native.Config
	factory    *native.Factory
	dispatcher *dispatch.Dispatcher
}

func newNativeEnv(confPath string, features []string, log logs.Logger) (*nativeEnv, error) {
	cfg, err := loadNativeConf(confPath)
	if err != nil {
		return nil, err
	}
	cfg.Features = append(cfg.Features, features...)

	factory, err := native.NewDefaultFactory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "build native registry failed")
	}
	d := dispatch.New(factory, log)
	d.SetDebugLog(cfg.EnableDebugLog)
	return &nativeEnv{
		cfg:        cfg,
		factory:    factory,
		dispatcher: d,
	}, nil
}

// openLogger opens the log described by conf/log.yaml.
func openLogger() (logs.Logger, error) {
	log, err := logs.GetLogFitter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "open log failed")
	}
	return log, nil
}
