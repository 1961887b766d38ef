package daemon

import (
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

func TestScriptSessionTable_FirstUseAlwaysSucceeds(t *testing.T) {
	tbl := newScriptSessionTable(time.Minute)
	dir, ok := tbl.use("dbg", "/tmp/trace-a")
	if !ok {
		t.Fatal("first use of a fresh session id should succeed")
	}
	if dir != "/tmp/trace-a" {
		t.Errorf("traceDir = %q, want /tmp/trace-a", dir)
	}
}

func TestScriptSessionTable_RepeatUseKeepsTraceDir(t *testing.T) {
	tbl := newScriptSessionTable(time.Minute)
	tbl.use("dbg", "/tmp/trace-a")
	dir, ok := tbl.use("dbg", "")
	if !ok {
		t.Fatal("repeated use before expiry should succeed")
	}
	if dir != "/tmp/trace-a" {
		t.Errorf("traceDir = %q, want the bound trace /tmp/trace-a to persist", dir)
	}
}

func TestScriptSessionTable_ExpiredSessionFails(t *testing.T) {
	tbl := newScriptSessionTable(time.Minute)
	tbl.use("dbg", "/tmp/trace-a")
	tbl.entries["dbg"].lastAccess = time.Now().Add(-time.Hour)

	expired := tbl.sweepIdle()
	if len(expired) != 1 || expired[0] != "dbg" {
		t.Fatalf("sweepIdle() = %v, want [dbg]", expired)
	}

	if _, ok := tbl.use("dbg", ""); ok {
		t.Fatal("reusing an expired session id should fail")
	}
}

func TestScriptSessionTable_NoSessionLoadedMessage(t *testing.T) {
	s := &Server{scriptSessions: newScriptSessionTable(time.Minute)}
	s.scriptSessions.entries["dbg"] = &scriptSessionEntry{expired: true, lastAccess: time.Now()}

	_, ok := s.scriptSessions.use("dbg", "")
	if ok {
		t.Fatal("expired session should not resolve")
	}
	msg := failureMsg(&dap.Message{}, "ct/exec-script: no session loaded for sessionId \"dbg\"")
	if !strings.Contains(msg.Message, "no session loaded") {
		t.Errorf("error message %q does not contain %q", msg.Message, "no session loaded")
	}
}
