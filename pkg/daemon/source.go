package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

// resolveSourcePath tries, in order: the trace's own embedded copy under
// files/, the absolute path as originally recorded, a path relative to the
// program's working directory, and a path relative to the trace
// directory's parent. First hit wins. The MCP adapter's source resources
// fall back to this same order when the daemon returns no content.
func resolveSourcePath(traceDir, workdir, filePath string) (string, error) {
	candidates := []string{
		filepath.Join(traceDir, "files", strings.TrimPrefix(filePath, "/")),
	}
	if filepath.IsAbs(filePath) {
		candidates = append(candidates, filePath)
	}
	if workdir != "" {
		candidates = append(candidates, filepath.Join(workdir, filePath))
	}
	candidates = append(candidates, filepath.Join(filepath.Dir(traceDir), filePath))

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("source file not found in trace: %s", filePath)
}

func (s *Server) handleReadSource(msg *dap.Message) *dap.Message {
	var req ctRequest
	_ = json.Unmarshal(msg.Arguments, &req)
	if req.FilePath == "" {
		return failureMsg(msg, "ct/py-read-source requires filePath")
	}

	sess, ok := s.lookupSession(req)
	if !ok {
		return failure(msg, ErrUnknownSession)
	}

	path, err := resolveSourcePath(sess.TraceDir, sess.Db.Metadata.Workdir, req.FilePath)
	if err != nil {
		return failure(msg, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return failure(msg, fmt.Errorf("ct/py-read-source: %w", err))
	}

	body, _ := json.Marshal(struct {
		Content string `json:"content"`
		Path    string `json:"path"`
	}{string(content), path})
	return &dap.Message{Type: "response", RequestSeq: msg.Seq, Success: true, Body: body}
}
