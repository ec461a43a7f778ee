package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pithecus-labs/creditrunner/runner"
)

func TestLog_EmitsTypedLine(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, nil)
	r.Log("warn", "credential retired")

	ev, err := ParseLine(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Kind != KindLog || ev.Level != "warn" || ev.Message != "credential retired" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestMetrics_CachedForTerminalStatus(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, nil)
	r.Metrics(runner.Metrics{Total: 10, Succeeded: 3})
	buf.Reset()

	r.Status(runner.PhaseDone)
	ev, err := ParseLine(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Status != runner.PhaseDone {
		t.Errorf("expected status %q, got %q", runner.PhaseDone, ev.Status)
	}
	if ev.Metrics == nil || ev.Metrics.Total != 10 {
		t.Errorf("expected cached metrics attached, got %+v", ev.Metrics)
	}
}

func TestStatus_NonTerminalHasNoMetrics(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, nil)
	r.Metrics(runner.Metrics{Total: 10})
	buf.Reset()

	r.Status(runner.PhaseRunning)
	ev, err := ParseLine(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Metrics != nil {
		t.Errorf("expected no metrics on non-terminal status, got %+v", ev.Metrics)
	}
}

func TestParseLine_AcceptsLegacyStatePrefix(t *testing.T) {
	ev, err := ParseLine(`::STATE:: {"type":"log","level":"info","message":"hi"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Kind != "log" || ev.Message != "hi" {
		t.Errorf("unexpected event: %+v", ev)
	}
}
