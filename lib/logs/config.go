package logs

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/xuperchain/xnative/lib/utils"
)

// LogConfig is the log config of the native contract runtime
type LogConfig struct {
	Module   string `yaml:"module,omitempty"`
	Filepath string `yaml:"filepath,omitempty"`
	Filename string `yaml:"filename,omitempty"`
	// logfmt or json
	Fmt     string `yaml:"fmt,omitempty"`
	Console bool   `yaml:"console,omitempty"`
	// debug, trace, info, warn, error
	Level string `yaml:"level,omitempty"`
	Async bool   `yaml:"async,omitempty"`
	// rotate interval in minutes
	RotateInterval int `yaml:"rotateinterval,omitempty"`
	// backups kept, in hours
	RotateBackups int `yaml:"rotatebackups,omitempty"`
}

func LoadLogConf(cfgFile string) (*LogConfig, error) {
	cfg := GetDefLogConf()
	err := cfg.loadConf(cfgFile)
	if err != nil {
		return nil, errors.Wrap(err, "load log config failed")
	}

	return cfg, nil
}

func GetDefLogConf() *LogConfig {
	return &LogConfig{
		Module:   "xnative",
		Filepath: "logs",
		Filename: "xnative",
		Fmt:      "logfmt",
		Console:  true,
		Level:    "debug",
		Async:    false,
		// rotate every 60 minutes
		RotateInterval: 60,
		// keep old log files for 7 days
		RotateBackups: 168,
	}
}

func (t *LogConfig) loadConf(cfgFile string) error {
	if cfgFile == "" || !utils.FileIsExist(cfgFile) {
		return errors.Errorf("config file set error.path:%s", cfgFile)
	}

	viperObj := viper.New()
	viperObj.SetConfigFile(cfgFile)
	err := viperObj.ReadInConfig()
	if err != nil {
		return errors.Wrapf(err, "read config failed.path:%s", cfgFile)
	}

	if err = viperObj.Unmarshal(t); err != nil {
		return errors.Wrapf(err, "unmarshal config failed.path:%s", cfgFile)
	}

	return nil
}
