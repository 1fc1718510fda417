package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseOperation(t *testing.T) {
	op, err := parseOperation("0xb1:10:0xdeadbeef:allow-failure")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if op.Target != "0xb1" || op.Value != "10" || op.Data != "0xdeadbeef" || !op.AllowFailure {
		t.Fatalf("unexpected operation %+v", op)
	}
	if _, err := parseOperation("0xb1"); err == nil {
		t.Fatalf("expected error for missing value")
	}
	if _, err := parseOperation("0xb1:1:bogus"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestParseAction(t *testing.T) {
	action, err := parseAction("swap:0xc1:5:0x01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if action.Type != "swap" || action.Target != "0xc1" || action.Value != "5" || action.Data != "0x01" {
		t.Fatalf("unexpected action %+v", action)
	}
	if _, err := parseAction("transfer"); err == nil {
		t.Fatalf("expected error for missing target")
	}
}

func TestBatchExecCommand(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/batches" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"batch_id":1,"success_count":1,"refund":"0"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--server", srv.URL, "--from", "0xa1", "batch", "exec", "--value", "10", "--op", "0xb1:10", "--require-all"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got["from"] != "0xa1" || got["require_all_success"] != true {
		t.Fatalf("unexpected request %v", got)
	}
	var res map[string]any
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if res["batch_id"] != float64(1) {
		t.Fatalf("unexpected output %v", res)
	}
}
