package logs

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/xuperchain/log15"

	"github.com/xuperchain/xnative/lib/utils"
)

// LogBufSize define log buffer channel size
const LogBufSize = 102400

// OpenLog create and open log stream using LogConfig
func OpenLog(lc *LogConfig) (LogDriver, error) {
	infoFile := lc.Filepath + "/" + lc.Filename + ".log"
	wfFile := lc.Filepath + "/" + lc.Filename + ".log.wf"
	if err := os.MkdirAll(lc.Filepath, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "create log dir failed.path:%s", lc.Filepath)
	}

	lfmt := log.LogfmtFormat()
	switch lc.Fmt {
	case "json":
		lfmt = log.JsonFormat()
	}

	xlog := log.New("module", lc.Module)
	lvLevel, err := log.LvlFromString(lc.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level error")
	}
	// set lowest level as level limit, this may improve performance
	xlog.SetLevelLimit(lvLevel)

	// RotateFileHandler is only used if both rotate settings are positive
	var (
		nmHandler log.Handler
		wfHandler log.Handler
	)
	if lc.RotateInterval > 0 && lc.RotateBackups > 0 {
		nmHandler = log.Must.RotateFileHandler(
			infoFile, lfmt, lc.RotateInterval, lc.RotateBackups)
		wfHandler = log.Must.RotateFileHandler(
			wfFile, lfmt, lc.RotateInterval, lc.RotateBackups)
	} else {
		nmHandler = log.Must.FileHandler(infoFile, lfmt)
		wfHandler = log.Must.FileHandler(wfFile, lfmt)
	}

	if lc.Async {
		nmHandler = log.BufferedHandler(LogBufSize, nmHandler)
		wfHandler = log.BufferedHandler(LogBufSize, wfHandler)
	}

	// levels from lvLevel up to Info go to the normal log
	nmfileh := log.BoundLvlFilterHandler(lvLevel, log.LvlError, nmHandler)

	// Warn and above go to the wf log
	wffileh := log.LvlFilterHandler(log.LvlWarn, wfHandler)

	var lhd log.Handler
	if lc.Console {
		hstd := log.StreamHandler(os.Stderr, lfmt)
		lhd = log.SyncHandler(log.MultiHandler(hstd, nmfileh, wffileh))
	} else {
		lhd = log.SyncHandler(log.MultiHandler(nmfileh, wffileh))
	}
	xlog.SetHandler(lhd)

	return xlog, nil
}

// NewDiscardLogger returns a logger dropping every record. Embedders that do
// not care about native runtime logs and unit tests use it.
func NewDiscardLogger() Logger {
	xlog := log.New("module", "xnative")
	xlog.SetHandler(log.DiscardHandler())
	lf, _ := NewLogger(xlog, "discard")
	return lf
}

// For unit testing.
const (
	DefLogConfFile = "conf/log.yaml"
)

// GetConfFile returns conf/log.yaml under XNATIVE_ROOT_PATH.
func GetConfFile() string {
	return utils.GetRootPath() + DefLogConfFile
}

// GetLog opens the log described by GetConfFile, falling back to the
// default config when the file is missing.
func GetLog() (LogDriver, error) {
	logCfg := GetDefLogConf()
	if utils.FileIsExist(GetConfFile()) {
		cfg, err := LoadLogConf(GetConfFile())
		if err != nil {
			return nil, err
		}
		logCfg = cfg
	}

	logger, err := OpenLog(logCfg)
	if err != nil {
		return nil, errors.Wrap(err, "open log fail")
	}

	return logger, nil
}

// GetLogFitter wraps logger, opening the configured log when it is nil.
func GetLogFitter(logger LogDriver) (Logger, error) {
	if logger == nil {
		lg, err := GetLog()
		if err != nil {
			return nil, err
		}
		logger = lg
	}

	log, err := NewLogger(logger, utils.GenLogId())
	if err != nil {
		return nil, errors.Wrap(err, "new logger fail")
	}

	return log, nil
}
