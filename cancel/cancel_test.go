package cancel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecus-labs/creditrunner/types"
)

func TestStopFlagFile_TriggersCancellation(t *testing.T) {
	dir := t.TempDir()
	flagPath := filepath.Join(dir, "stop.flag")

	var observed types.StopCondition
	done := make(chan struct{})
	c := New(context.Background(), flagPath, func(r types.StopCondition) {
		observed = r
		close(done)
	})
	defer c.Stop()

	if c.Cancelled() {
		t.Fatal("expected not cancelled before flag file exists")
	}

	if err := os.WriteFile(flagPath, []byte{}, 0o644); err != nil {
		t.Fatalf("write flag: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop-flag cancellation")
	}

	if !c.Cancelled() {
		t.Error("expected Cancelled() true after stop-flag observed")
	}
	if observed != types.StopFlagFile {
		t.Errorf("expected StopFlagFile reason, got %v", observed)
	}
}

func TestOnStop_FiresExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	flagPath := filepath.Join(dir, "stop.flag")
	_ = os.WriteFile(flagPath, []byte{}, 0o644)

	var calls int
	done := make(chan struct{})
	c := New(context.Background(), flagPath, func(types.StopCondition) {
		calls++
		close(done)
	})
	defer c.Stop()

	<-done
	time.Sleep(PollInterval * 2)

	if calls != 1 {
		t.Errorf("expected onStop to fire exactly once, got %d", calls)
	}
}
