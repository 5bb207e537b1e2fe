package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agenttools/debugd/internal/adapterdriver"
	"github.com/agenttools/debugd/internal/daemon"
	"github.com/agenttools/debugd/internal/session"
	"github.com/agenttools/debugd/internal/tools"
)

var rootCmd = &cobra.Command{
	Use:   "debugd",
	Short: "Daemon driving native and adapter-backed debug sessions",
	Long: `debugd is the long-lived process behind the debugger toolchain. It owns
debuggee processes and external adapter connections (DAP, Chrome DevTools
Protocol) and multiplexes them over a single Unix domain socket speaking
framed JSON-RPC 2.0.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.Flags().String("socket", defaultSocketPath(), "path to the daemon's Unix domain socket")
	rootCmd.Flags().Int("max-sessions", 64, "maximum concurrent debug sessions")
	rootCmd.Flags().Duration("idle-timeout", 30*time.Minute, "terminate sessions idle longer than this")
	rootCmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")

	viper.SetEnvPrefix("DEBUGD")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("socket", rootCmd.Flags().Lookup("socket"))
	_ = viper.BindPFlag("max-sessions", rootCmd.Flags().Lookup("max-sessions"))
	_ = viper.BindPFlag("idle-timeout", rootCmd.Flags().Lookup("idle-timeout"))
	_ = viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/debugd.sock"
	}
	return "/tmp/debugd.sock"
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zap.DebugLevel
	case "warn":
		lvl = zap.WarnLevel
	case "error":
		lvl = zap.ErrorLevel
	default:
		lvl = zap.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sessions := session.New(session.Config{
		MaxSessions: viper.GetInt("max-sessions"),
		IdleTimeout: viper.GetDuration("idle-timeout"),
	}, logger)
	defer sessions.Close()

	spawner := adapterdriver.NewSpawner(logger)
	registry := tools.New(sessions, spawner, adapterdriver.DefaultManifests(), logger)

	sockPath := viper.GetString("socket")
	srv, err := daemon.Listen(sockPath, registry, logger)
	if err != nil {
		return err
	}
	logger.Info("debugd listening", zap.String("socket", sockPath))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("debugd shutting down")
		cancel()
	}()

	return srv.Serve(ctx)
}
