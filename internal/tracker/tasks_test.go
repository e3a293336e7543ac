package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/carevisit/internal/geo"
	"github.com/evcraddock/carevisit/internal/visit"
)

func newTestCoordinator(t *testing.T, v *visit.Visit) (*TaskCoordinator, *Controller, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway(v)
	c := NewController(v.ID, gw, geo.Unsupported{}, NewBoard(clock.NewMock()))
	require.NoError(t, c.Load(context.Background()))
	return NewTaskCoordinator(c, gw, c.Board()), c, gw
}

func inProgressVisit() *visit.Visit {
	return testVisit("V1", visit.InProgress,
		visit.Task{ID: "T1", Title: "Give medication"},
		visit.Task{ID: "T2", Title: "Prepare lunch"},
	)
}

func TestTaskStateInitialisation(t *testing.T) {
	v := testVisit("V1", visit.InProgress,
		visit.Task{ID: "T1", Status: visit.TaskCompleted},
		visit.Task{ID: "T2", Feedback: "client asleep"},
		visit.Task{ID: "T3"},
	)
	tc, _, _ := newTestCoordinator(t, v)

	st, ok := tc.State("T1")
	require.True(t, ok)
	assert.Equal(t, TaskState{Selection: SelectYes}, st)

	st, _ = tc.State("T2")
	assert.Equal(t, TaskState{Selection: SelectNo, Draft: "client asleep", FeedbackVisible: true}, st)

	st, _ = tc.State("T3")
	assert.Equal(t, TaskState{Selection: SelectNo}, st)

	_, ok = tc.State("nope")
	assert.False(t, ok)
}

func TestSelectYesSubmitsOnce(t *testing.T) {
	tc, c, gw := newTestCoordinator(t, inProgressVisit())

	require.NoError(t, tc.Select(context.Background(), "T1", SelectYes))

	updates := gw.callsTo("UpdateTask")
	require.Len(t, updates, 1)
	assert.Equal(t, "T1", updates[0].ID)
	assert.Equal(t, visit.TaskUpdate{Status: visit.OutcomeCompleted, Done: true}, updates[0].Update)

	task, _ := c.Visit().Task("T1")
	assert.Equal(t, visit.TaskCompleted, task.Status, "visit re-read after update")
	st, _ := tc.State("T1")
	assert.False(t, st.Pending)
	assert.Equal(t, SelectYes, st.Selection)
}

func TestSelectNoWaitsForBlur(t *testing.T) {
	tc, _, gw := newTestCoordinator(t, inProgressVisit())
	ctx := context.Background()

	require.NoError(t, tc.Select(ctx, "T1", SelectNo))
	assert.Empty(t, gw.callsTo("UpdateTask"))
	st, _ := tc.State("T1")
	assert.True(t, st.FeedbackVisible)

	require.NoError(t, tc.SetDraft("T1", "client unavailable"))
	assert.Empty(t, gw.callsTo("UpdateTask"), "typing never submits")

	require.NoError(t, tc.Blur(ctx, "T1"))

	updates := gw.callsTo("UpdateTask")
	require.Len(t, updates, 1)
	assert.Equal(t, "T1", updates[0].ID)
	assert.Equal(t, visit.TaskUpdate{
		Status:   visit.OutcomeNotCompleted,
		Done:     true,
		Feedback: "client unavailable",
	}, updates[0].Update)
}

func TestBlurWithBlankDraft(t *testing.T) {
	tc, _, gw := newTestCoordinator(t, inProgressVisit())
	ctx := context.Background()

	require.NoError(t, tc.Select(ctx, "T1", SelectNo))
	require.NoError(t, tc.Blur(ctx, "T1"))
	require.NoError(t, tc.SetDraft("T1", "   "))
	require.NoError(t, tc.Confirm(ctx, "T1"))

	assert.Empty(t, gw.callsTo("UpdateTask"))
}

func TestBlurWithHiddenField(t *testing.T) {
	tc, _, gw := newTestCoordinator(t, inProgressVisit())
	ctx := context.Background()

	require.NoError(t, tc.SetDraft("T2", "typed but never shown"))
	require.NoError(t, tc.Blur(ctx, "T2"))
	assert.Empty(t, gw.callsTo("UpdateTask"))
}

func TestTaskUpdateFailureKeepsLocalState(t *testing.T) {
	tc, c, gw := newTestCoordinator(t, inProgressVisit())
	gw.taskErr["T1"] = errors.New("network down")
	ctx := context.Background()

	require.NoError(t, tc.Select(ctx, "T1", SelectNo))
	require.NoError(t, tc.SetDraft("T1", "refused"))
	require.NoError(t, tc.Blur(ctx, "T1"))

	n := c.Board().Current()
	assert.Equal(t, KindError, n.Kind)
	assert.Equal(t, "Failed to update task: network down", n.Message)

	st, _ := tc.State("T1")
	assert.Equal(t, TaskState{Selection: SelectNo, Draft: "refused", FeedbackVisible: true}, st)
	assert.Len(t, gw.callsTo("GetVisit"), 1, "no re-read after failure")

	// Retry by blurring again.
	delete(gw.taskErr, "T1")
	require.NoError(t, tc.Blur(ctx, "T1"))
	assert.Len(t, gw.callsTo("UpdateTask"), 2)
}

func TestTaskSelectionNotRevertedOnFailure(t *testing.T) {
	tc, _, gw := newTestCoordinator(t, inProgressVisit())
	gw.taskErr["T1"] = errors.New("boom")

	require.NoError(t, tc.Select(context.Background(), "T1", SelectYes))

	st, _ := tc.State("T1")
	assert.Equal(t, SelectYes, st.Selection)
	assert.False(t, st.Pending)
}

func TestTaskRejectsWhilePending(t *testing.T) {
	tc, _, gw := newTestCoordinator(t, inProgressVisit())
	gw.block = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- tc.Select(ctx, "T1", SelectYes) }()

	require.Eventually(t, func() bool {
		st, _ := tc.State("T1")
		return st.Pending
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, tc.Select(ctx, "T1", SelectNo), ErrTaskPending)
	st, _ := tc.State("T1")
	assert.Equal(t, SelectYes, st.Selection, "rejected selection leaves state unchanged")

	// Other tasks are not blocked by T1.
	require.NoError(t, tc.Select(ctx, "T2", SelectNo))

	close(gw.block)
	require.NoError(t, <-done)
	assert.Len(t, gw.callsTo("UpdateTask"), 1)
}

func TestTasksIndependent(t *testing.T) {
	tc, _, gw := newTestCoordinator(t, inProgressVisit())
	gw.taskErr["T1"] = errors.New("boom")
	ctx := context.Background()

	require.NoError(t, tc.Select(ctx, "T2", SelectNo))
	require.NoError(t, tc.SetDraft("T2", "no food in fridge"))
	require.NoError(t, tc.Select(ctx, "T1", SelectYes))

	st, _ := tc.State("T2")
	assert.Equal(t, TaskState{Selection: SelectNo, Draft: "no food in fridge", FeedbackVisible: true}, st)
}

func TestTasksNotInteractive(t *testing.T) {
	for _, status := range []visit.Status{visit.Upcoming, visit.Completed, visit.Missed} {
		t.Run(string(status), func(t *testing.T) {
			v := testVisit("V1", status, visit.Task{ID: "T1"})
			tc, _, gw := newTestCoordinator(t, v)
			ctx := context.Background()

			assert.False(t, tc.Interactive())
			assert.ErrorIs(t, tc.Select(ctx, "T1", SelectYes), ErrNotInteractive)
			assert.ErrorIs(t, tc.SetDraft("T1", "x"), ErrNotInteractive)
			assert.ErrorIs(t, tc.Blur(ctx, "T1"), ErrNotInteractive)
			assert.Empty(t, gw.callsTo("UpdateTask"))
		})
	}
}

func TestTasksUnknownTask(t *testing.T) {
	tc, _, _ := newTestCoordinator(t, inProgressVisit())
	assert.ErrorIs(t, tc.Select(context.Background(), "T9", SelectYes), ErrUnknownTask)
	assert.ErrorIs(t, tc.SetDraft("T9", "x"), ErrUnknownTask)
}

func TestSyncPreservesExistingState(t *testing.T) {
	tc, c, gw := newTestCoordinator(t, inProgressVisit())
	ctx := context.Background()

	require.NoError(t, tc.Select(ctx, "T1", SelectNo))
	require.NoError(t, tc.SetDraft("T1", "half typed"))

	gw.mu.Lock()
	gw.visits["V1"].Tasks = []visit.Task{
		{ID: "T1", VisitID: "V1", Status: visit.TaskPending},
		{ID: "T3", VisitID: "V1", Status: visit.TaskCompleted},
	}
	gw.mu.Unlock()

	require.NoError(t, c.Refresh(ctx))
	tc.Sync()

	st, ok := tc.State("T1")
	require.True(t, ok)
	assert.Equal(t, "half typed", st.Draft)

	st, ok = tc.State("T3")
	require.True(t, ok)
	assert.Equal(t, SelectYes, st.Selection)
}

func TestSyncDropsVanishedTasks(t *testing.T) {
	tc, c, gw := newTestCoordinator(t, inProgressVisit())

	gw.mu.Lock()
	gw.visits["V1"].Tasks = gw.visits["V1"].Tasks[:1]
	gw.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background()))

	_, ok := tc.State("T2")
	assert.False(t, ok)
	_, ok = tc.State("T1")
	assert.True(t, ok)
}

func TestAllCompleted(t *testing.T) {
	tc, _, _ := newTestCoordinator(t, inProgressVisit())
	ctx := context.Background()
	assert.False(t, tc.AllCompleted())

	require.NoError(t, tc.Select(ctx, "T1", SelectYes))
	assert.False(t, tc.AllCompleted())

	require.NoError(t, tc.Select(ctx, "T2", SelectYes))
	assert.True(t, tc.AllCompleted())

	empty, _, _ := newTestCoordinator(t, testVisit("V2", visit.InProgress))
	assert.False(t, empty.AllCompleted(), "no tasks is not all completed")

	done, _, _ := newTestCoordinator(t, testVisit("V3", visit.Completed, visit.Task{ID: "T1", Status: visit.TaskCompleted}))
	assert.False(t, done.AllCompleted())
}

func TestParseSelection(t *testing.T) {
	for in, want := range map[string]Selection{"yes": SelectYes, "Y": SelectYes, "no": SelectNo, " n ": SelectNo} {
		got, err := ParseSelection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSelection("maybe")
	assert.Error(t, err)
}
