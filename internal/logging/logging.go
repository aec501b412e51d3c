package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger 按 -v 次数配置全局 logger：终端（stderr）+ XDG state 目录下的日志文件。
//
// stdout 只留给报告输出，日志一律不写 stdout。
func SetupLogger(verbosity int) {
	setup(verbosity, os.Stderr, getLogFilePath())
}

func setup(verbosity int, console io.Writer, logFile string) {
	zerolog.SetGlobalLevel(levelFor(verbosity))

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}}

	var fileErr error
	if logFile != "" {
		var f *os.File
		f, fileErr = openLogFile(logFile)
		if fileErr == nil {
			writers = append(writers, f)
		}
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", logFile).Msg("日志文件不可用，仅输出到终端")
	}
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	log.Debug().Int("verbosity", verbosity).Str("log_file", logFile).Msg("logger 初始化完成")
}

func levelFor(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// GetLogger 返回带 component 字段的子 logger。
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// LogOperationStart 记录阶段开始，返回的函数记录阶段结束与耗时。
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("阶段开始")
	return func() {
		logger.Debug().Str("operation", operation).Dur("duration", time.Since(start)).Msg("阶段结束")
	}
}

// getLogFilePath 返回 $XDG_STATE_HOME/dupfind/dupfind.log。
func getLogFilePath() string {
	xdg.Reload()
	return filepath.Join(xdg.StateHome, "dupfind", "dupfind.log")
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败：%w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败：%w", err)
	}
	return f, nil
}
