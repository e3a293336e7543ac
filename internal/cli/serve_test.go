package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/db"
	"github.com/evcraddock/carevisit/internal/visit"
)

func TestStartSweepStopsBeforeClose(t *testing.T) {
	d, err := db.Open(filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	wait := startSweep(ctx, visit.NewRepository(d), time.Millisecond, zerolog.New(&logs))

	time.Sleep(20 * time.Millisecond)
	cancel()

	stopped := make(chan struct{})
	go func() {
		wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not stop after cancel")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if strings.Contains(logs.String(), "database is closed") {
		t.Errorf("sweep ran after the database was closed:\n%s", logs.String())
	}
}

func TestStartSweepDisabled(t *testing.T) {
	wait := startSweep(context.Background(), nil, 0, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait blocked with the sweep disabled")
	}
}
