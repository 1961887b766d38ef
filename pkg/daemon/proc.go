package daemon

import (
	"bytes"
	"os"
	"os/exec"

	"github.com/ormasoftchile/codetracer/pkg/config"
)

// runCaptured runs cmd to completion, capturing stdout and stderr
// separately. The returned error is cmd.Run's error verbatim (an
// *exec.ExitError for a nonzero exit, or the context's deadline error for
// a kill caused by CommandContext's timeout).
func runCaptured(cmd *exec.Cmd) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// scriptEnv builds the extra environment ct/exec-script's interpreter
// subprocess gets on top of the daemon's own: CODETRACER_PYTHON_API_PATH
// so `from codetracer import Trace` resolves, and CODETRACER_DB_TRACE_PATH
// naming the trace the script should bind `trace` to, when one is known.
func scriptEnv(cfg config.Daemon, traceDir string) []string {
	env := os.Environ()
	if cfg.PythonAPIPath != "" {
		env = append(env, "CODETRACER_PYTHON_API_PATH="+cfg.PythonAPIPath)
	}
	if traceDir != "" {
		env = append(env, "CODETRACER_DB_TRACE_PATH="+traceDir)
	}
	if cfg.SocketPath != "" {
		env = append(env, "CODETRACER_DAEMON_SOCK="+cfg.SocketPath)
	}
	return env
}
