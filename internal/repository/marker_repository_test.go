package repository

import (
	"context"
	"testing"
	"time"
)

func TestAnalysisMarker(t *testing.T) {
	rdb, mr := newTestRedis(t)
	marker := NewAnalysisMarker(rdb)
	ctx := context.Background()

	ok, err := marker.Acquire(ctx, "e1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire = %v, %v", ok, err)
	}
	if ok, _ := marker.Acquire(ctx, "e1", time.Minute); ok {
		t.Error("second Acquire must fail while marker is held")
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := marker.Acquire(ctx, "e1", time.Minute); !ok {
		t.Error("expired marker must be acquirable")
	}

	if err := marker.Release(ctx, "e1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := marker.Acquire(ctx, "e1", time.Minute); !ok {
		t.Error("released marker must be acquirable")
	}
}
