// Package main provides ct-db-backend: a standalone per-trace DAP server
// over stdio. The daemon serves traces in-process and never spawns this
// binary itself; it exists for driving a single trace directly (an
// editor's DAP client, or manual testing) without going through the
// daemon's session table at all.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ormasoftchile/codetracer/pkg/dap"
	"github.com/ormasoftchile/codetracer/pkg/trace"
)

func main() {
	traceDir := flag.String("trace", "", "Path to a trace directory")
	flag.Parse()

	if *traceDir == "" {
		fmt.Fprintln(os.Stderr, "ct-db-backend: -trace is required")
		os.Exit(1)
	}

	if err := run(*traceDir, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ct-db-backend: %v\n", err)
		os.Exit(1)
	}
}

// run loads traceDir, serves DAP messages read from in, and writes
// responses/events to out, until in is exhausted.
func run(traceDir string, in io.Reader, out io.Writer) error {
	db, err := trace.Load(traceDir)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}

	dispatcher := dap.New(db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	go func() {
		for msg := range dispatcher.Out() {
			if err := dap.WriteMessage(out, msg); err != nil {
				return
			}
		}
	}()

	reader := dap.NewReader(in)
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			cancel()
			return nil
		}
		dispatcher.Dispatch(msg)
	}
}
