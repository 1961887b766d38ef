// Package main provides the backend-manager binary: daemon lifecycle
// control plus the client-side tools (trace mcp, trace attach, trace
// status) that talk to it over its domain socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/codetracer/pkg/config"
	"github.com/ormasoftchile/codetracer/pkg/ctlog"
	"github.com/ormasoftchile/codetracer/pkg/daemon"
	"github.com/ormasoftchile/codetracer/pkg/daemonclient"
	"github.com/ormasoftchile/codetracer/pkg/mcpadapter"
	"github.com/ormasoftchile/codetracer/pkg/replclient"
	"github.com/ormasoftchile/codetracer/pkg/tuidash"
)

var version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "backend-manager",
	Short: "Lifecycle and client tooling for the codetracer daemon",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to daemon.yaml (defaults apply if omitted)")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)

	traceCmd.AddCommand(traceMcpCmd)
	traceCmd.AddCommand(traceAttachCmd)
	traceCmd.AddCommand(traceStatusCmd)
	rootCmd.AddCommand(traceCmd)

	rootCmd.AddCommand(versionCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start or stop the daemon process",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the daemon in the foreground, listening on its domain socket",
	RunE:  runDaemonStart,
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := ctlog.New("daemon")
	s := daemon.New(cfg, log)
	if err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("received shutdown signal")
		s.Shutdown()
		cancel()
	}()

	idle := time.Duration(cfg.IdleTimeout.AsSeconds()) * time.Second
	if idle > 0 {
		go runIdleSweep(ctx, s, idle, log)
	}

	return s.Serve(ctx)
}

func runIdleSweep(ctx context.Context, s *daemon.Server, idle time.Duration, log *ctlog.Logger) {
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.SweepIdle(); len(evicted) > 0 {
				log.Info("evicted %d idle session(s): %v", len(evicted), evicted)
			}
		}
	}
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running daemon to shut down",
	RunE:  runDaemonStop,
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	c, err := daemonclient.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", cfg.SocketPath, err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Request(ctx, "ct/daemon-shutdown", nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("daemon refused shutdown: %s", resp.Message)
	}
	fmt.Println("daemon shutting down")
	return nil
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Client tools that talk to a running daemon",
}

var traceMcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP adapter on stdio",
	RunE:  runTraceMcp,
}

func runTraceMcp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	startCmd := []string{os.Args[0], "daemon", "start"}
	a := mcpadapter.New(version, cfg.SocketPath, startCmd)
	return server.ServeStdio(a.Server())
}

var traceAttachCmd = &cobra.Command{
	Use:   "attach [trace-dir]",
	Short: "Open an interactive REPL against a trace, via the daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceAttach,
}

func runTraceAttach(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	startCmd := []string{os.Args[0], "daemon", "start"}
	return replclient.Run(context.Background(), cfg.SocketPath, startCmd, args[0])
}

var traceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a live dashboard of sessions loaded in the daemon",
	RunE:  runTraceStatus,
}

func runTraceStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return tuidash.Run(cfg.SocketPath)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the backend-manager version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}
