package cmd

import (
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger returns a logger configured from conf.  conf must not be nil.
func newLogger(conf *config) (l *slog.Logger) {
	lvl := slog.LevelInfo
	if conf.Log.Verbose {
		lvl = slog.LevelDebug
	}

	c := &slogutil.Config{
		Format:       slogutil.FormatText,
		Level:        lvl,
		AddTimestamp: true,
	}

	if conf.Log.File != "" {
		c.Output = &lumberjack.Logger{
			Filename:   conf.Log.File,
			MaxSize:    conf.Log.MaxSize,
			MaxBackups: conf.Log.MaxBackups,
		}
	}

	return slogutil.New(c)
}
