// Package replclient implements the interactive REPL behind
// backend-manager trace attach: a readline loop that opens a trace
// through the daemon and lets an operator run exec_script-style Python
// one-liners and inspect trace metadata without an editor or MCP client.
package replclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/chzyer/readline"

	"github.com/ormasoftchile/codetracer/pkg/daemonclient"
)

const helpText = `
# trace attach commands

- **info**            show trace language, program, workdir, event and source-file counts
- **files**           list every source file recorded in the trace
- **cat <file>**      print one source file's contents
- **py <script>**     run a Python one-liner against the trace (exec_script)
- **help**            show this text
- **quit**            exit
`

// Run dials (or auto-starts) the daemon at socketPath, opens traceDir as a
// session, and drives an interactive readline loop against it until the
// user quits or sends EOF.
func Run(ctx context.Context, socketPath string, startCmd []string, traceDir string) error {
	c, err := daemonclient.Connect(ctx, socketPath, startCmd)
	if err != nil {
		return fmt.Errorf("replclient: %w", err)
	}
	defer c.Close()

	openResp, err := c.Request(ctx, "ct/open-trace", struct {
		TracePath string `json:"tracePath"`
	}{traceDir})
	if err != nil {
		return fmt.Errorf("replclient: ct/open-trace: %w", err)
	}
	if !openResp.Success {
		return fmt.Errorf("replclient: ct/open-trace: %s", openResp.Message)
	}
	var opened struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(openResp.Body, &opened); err != nil {
		return fmt.Errorf("replclient: decode ct/open-trace response: %w", err)
	}

	repl := &repl{ctx: ctx, client: c, sessionID: opened.SessionID, traceDir: traceDir, output: os.Stdout}
	return repl.run()
}

type repl struct {
	ctx       context.Context
	client    *daemonclient.Client
	sessionID string
	traceDir  string
	output    io.Writer
	rl        *readline.Instance
}

func (r *repl) run() error {
	commands := []string{"info", "files", "cat", "py", "help", "quit"}
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("replclient: init readline: %w", err)
	}
	r.rl = rl
	defer rl.Close()

	fmt.Fprintf(r.output, "attached to %s (session %s)\n", r.traceDir, r.sessionID)
	fmt.Fprintln(r.output, "Type 'help' for available commands.")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		cmd := parts[0]
		var arg string
		if len(parts) == 2 {
			arg = parts[1]
		}

		switch cmd {
		case "info":
			r.handleInfo()
		case "files":
			r.handleFiles()
		case "cat":
			r.handleCat(arg)
		case "py":
			r.handlePy(arg)
		case "help", "?":
			r.handleHelp()
		case "quit", "q":
			fmt.Fprintln(r.output, "exiting.")
			return nil
		default:
			fmt.Fprintf(r.output, "unknown command: %q. Type 'help' for available commands.\n", cmd)
		}
	}
}

func (r *repl) prompt() string {
	return fmt.Sprintf("ct[%s]> ", r.sessionID)
}

func (r *repl) request(ctx context.Context, command string, args any) (ok bool, body json.RawMessage, errMsg string) {
	resp, err := r.client.Request(ctx, command, args)
	if err != nil {
		return false, nil, err.Error()
	}
	if !resp.Success {
		return false, nil, resp.Message
	}
	return true, resp.Body, ""
}

func (r *repl) handleInfo() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()
	ok, body, errMsg := r.request(ctx, "ct/trace-info", struct {
		SessionID string `json:"sessionId"`
	}{r.sessionID})
	if !ok {
		fmt.Fprintf(r.output, "error: %s\n", errMsg)
		return
	}
	var info struct {
		Language    string `json:"language"`
		Program     string `json:"program"`
		Workdir     string `json:"workdir"`
		SourceFiles int    `json:"sourceFiles"`
		TotalEvents int    `json:"totalEvents"`
	}
	_ = json.Unmarshal(body, &info)
	fmt.Fprintf(r.output, "language: %s\nprogram: %s\nworkdir: %s\nsourceFiles: %d\ntotalEvents: %d\n",
		info.Language, info.Program, info.Workdir, info.SourceFiles, info.TotalEvents)
}

func (r *repl) handleFiles() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()
	ok, body, errMsg := r.request(ctx, "ct/list-source-files", struct {
		SessionID string `json:"sessionId"`
	}{r.sessionID})
	if !ok {
		fmt.Fprintf(r.output, "error: %s\n", errMsg)
		return
	}
	var files struct {
		Paths []string `json:"paths"`
	}
	_ = json.Unmarshal(body, &files)
	for _, p := range files.Paths {
		fmt.Fprintln(r.output, p)
	}
}

func (r *repl) handleCat(filePath string) {
	if filePath == "" {
		fmt.Fprintln(r.output, "usage: cat <file>")
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()
	ok, body, errMsg := r.request(ctx, "ct/py-read-source", struct {
		SessionID string `json:"sessionId"`
		FilePath  string `json:"filePath"`
	}{r.sessionID, filePath})
	if !ok {
		fmt.Fprintf(r.output, "error: %s\n", errMsg)
		return
	}
	var src struct {
		Content string `json:"content"`
	}
	_ = json.Unmarshal(body, &src)
	fmt.Fprintln(r.output, src.Content)
}

func (r *repl) handlePy(script string) {
	if script == "" {
		fmt.Fprintln(r.output, "usage: py <script>")
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Minute)
	defer cancel()
	ok, body, errMsg := r.request(ctx, "ct/exec-script", struct {
		SessionID string `json:"sessionId"`
		Script    string `json:"script"`
	}{r.sessionID, script})
	if !ok {
		fmt.Fprintf(r.output, "error: %s\n", errMsg)
		return
	}
	var out struct {
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exitCode"`
		TimedOut bool   `json:"timedOut"`
	}
	_ = json.Unmarshal(body, &out)
	fmt.Fprint(r.output, out.Stdout)
	if out.Stderr != "" {
		fmt.Fprint(r.output, out.Stderr)
	}
	if out.TimedOut {
		fmt.Fprintln(r.output, "(timed out)")
	} else if out.ExitCode != 0 {
		fmt.Fprintf(r.output, "(exit %d)\n", out.ExitCode)
	}
}

func (r *repl) handleHelp() {
	rendered, err := glamour.Render(helpText, "dark")
	if err != nil {
		fmt.Fprint(r.output, helpText)
		return
	}
	fmt.Fprint(r.output, rendered)
}
