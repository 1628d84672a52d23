// Package main is the entry point for the CANSLIM surveillance engine:
// it loads config, opens the persistence layer, constructs the Service
// Controller, and runs until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/service"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	logLevel := flag.String("log-level", "", "override logging.console_level")
	flag.Parse()

	cfgMgr, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	cfg := cfgMgr.Get()

	level := cfg.Logging.ConsoleLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := setupLogger(level)
	defer logger.Sync()

	logger.Info("starting canslim monitor",
		zap.String("config", *configPath),
		zap.String("database", cfg.Database.Path),
		zap.String("ipc_socket", cfg.IPC.SocketPath),
	)

	controller, err := service.NewController(logger, cfgMgr)
	if err != nil {
		logger.Fatal("failed to construct service controller", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := controller.Run(ctx); err != nil {
		logger.Fatal("service controller exited with error", zap.Error(err))
	}
	logger.Info("canslim monitor stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
