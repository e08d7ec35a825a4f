// Package logging builds the zap-backed logr.Logger shared by the proxy.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Debug enables V(1) records on the console.
	Debug bool
	// File, when set, receives JSON records at debug level with rotation.
	File string
	// Console defaults to os.Stderr.
	Console io.Writer
}

// New returns the logger and a function that flushes and closes its outputs.
func New(options Options) (logr.Logger, func() error) {
	console := options.Console
	if console == nil {
		console = os.Stderr
	}

	consoleLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if options.Debug {
		consoleLevel.SetLevel(zapcore.DebugLevel)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02/01 15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(console), consoleLevel),
	}

	var rotator *lumberjack.Logger
	if options.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   options.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zap.NewAtomicLevelAt(zapcore.DebugLevel),
		))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() error {
		// Sync on a terminal returns EINVAL on some platforms, ignore it.
		_ = zapLogger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return zapr.NewLogger(zapLogger), closer
}
