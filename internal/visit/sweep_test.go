package visit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepMissed(t *testing.T) {
	repo := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ended := newVisit("V1")
	ended.Slot = Slot{From: time.Now().Add(-2 * time.Hour), To: time.Now().Add(-time.Hour)}
	_, err := repo.Create(ctx, ended)
	require.NoError(t, err)

	later := newVisit("V2")
	later.Client.ID = "client-2"
	later.Slot = Slot{From: time.Now().Add(time.Hour), To: time.Now().Add(2 * time.Hour)}
	_, err = repo.Create(ctx, later)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		SweepMissed(ctx, repo, 10*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		v, err := repo.Get(context.Background(), "V1")
		return err == nil && v.Status == Missed
	}, 2*time.Second, 10*time.Millisecond)

	v, err := repo.Get(ctx, "V2")
	require.NoError(t, err)
	assert.Equal(t, Upcoming, v.Status)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
