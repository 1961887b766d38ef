package dap

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	msgs := []*Message{
		{Seq: 1, Type: "request", Command: "initialize", Arguments: json.RawMessage(`{"clientID":"x"}`)},
		{Seq: 2, Type: "response", RequestSeq: 1, Success: true, Body: json.RawMessage(`{"supportsStepBack":true}`)},
		{Seq: 3, Type: "event", Event: "stopped"},
		{Seq: 4, Type: "response", RequestSeq: 2, Success: false, Message: "unknown command: foo"},
	}
	for _, m := range msgs {
		var buf bytes.Buffer
		if err := WriteMessage(&buf, m); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
		got, err := NewReader(&buf).ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		wantJSON, _ := json.Marshal(m)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			t.Errorf("round trip mismatch:\n want %s\n  got %s", wantJSON, gotJSON)
		}
	}
}

func TestReadMessage_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("X-Padding: ")
	for i := 0; i < maxHeaderBytes; i++ {
		buf.WriteByte('a')
	}
	buf.WriteString("\r\n\r\n")
	_, err := NewReader(&buf).ReadMessage()
	if err == nil {
		t.Fatal("expected error for oversized header")
	}
}

func TestReadMessage_MultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	WriteMessage(&buf, &Message{Seq: 1, Type: "event", Event: "initialized"})
	WriteMessage(&buf, &Message{Seq: 2, Type: "event", Event: "stopped"})

	r := NewReader(&buf)
	m1, err := r.ReadMessage()
	if err != nil || m1.Event != "initialized" {
		t.Fatalf("first message: %+v, err=%v", m1, err)
	}
	m2, err := r.ReadMessage()
	if err != nil || m2.Event != "stopped" {
		t.Fatalf("second message: %+v, err=%v", m2, err)
	}
}
