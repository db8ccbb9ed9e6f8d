package sysinfo

import (
	"context"
	"os"
	"testing"
)

func TestCollectSelfProcess(t *testing.T) {
	p := NewProvider()
	snap, err := p.Collect(context.Background(), os.Getpid(), 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if snap.Pool.RSSBytes == 0 {
		t.Error("expected nonzero RSS for the running test process")
	}
	if snap.Host.MemTotal == 0 {
		t.Error("expected nonzero host total memory")
	}
}

func TestCollectSkipsZeroPID(t *testing.T) {
	p := NewProvider()
	snap, err := p.Collect(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if snap.Pool.RSSBytes != 0 || snap.Miner.RSSBytes != 0 {
		t.Error("expected zeroed usage for PID 0")
	}
}
