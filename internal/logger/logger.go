// Package logger はプロセス単位の logrus ロガーを組み立てます。
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New は level/format からロガーを作成します。不正なレベルは info に倒します。
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput は出力先を指定してロガーを作成します。
func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	log.SetLevel(logrus.InfoLevel)
	if strings.TrimSpace(level) == "" {
		return log
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warnf("invalid log level '%s', defaulting to 'info'", level)
		return log
	}
	log.SetLevel(parsed)
	return log
}

// Discard はテスト用に何も出力しないロガーを返します。
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
