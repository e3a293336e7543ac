package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/visit"
)

// Selection is the caregiver's answer to "was this task done?".
type Selection int

const (
	SelectNo Selection = iota
	SelectYes
)

func (s Selection) String() string {
	if s == SelectYes {
		return "yes"
	}
	return "no"
}

// ParseSelection accepts yes/y/no/n, case-insensitively.
func ParseSelection(s string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return SelectYes, nil
	case "no", "n":
		return SelectNo, nil
	default:
		return SelectNo, fmt.Errorf("invalid selection %q (want yes or no)", s)
	}
}

// TaskState is the local edit state of one task.
type TaskState struct {
	Selection       Selection
	Draft           string
	FeedbackVisible bool
	Pending         bool
}

// VisitSource supplies the last-read visit record. *Controller satisfies it.
type VisitSource interface {
	Visit() *visit.Visit
}

// Refresher re-reads the visit record.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TaskCoordinator manages the completion workflow of every task on a
// visit. Tasks are independent: a pending submission on one task never
// blocks another. A task with a submission in flight rejects further
// submissions until it settles.
type TaskCoordinator struct {
	source    VisitSource
	refresher Refresher
	gw        Gateway
	board     *Board
	logger    zerolog.Logger

	mu     sync.Mutex
	states map[string]*TaskState
}

// NewTaskCoordinator creates a coordinator for the visit exposed by source.
// If source also implements Refresher it is refreshed after every
// successful update.
func NewTaskCoordinator(source VisitSource, gw Gateway, board *Board, opts ...Option) *TaskCoordinator {
	if board == nil {
		board = NewBoard(nil)
	}
	o := buildOptions(opts)
	tc := &TaskCoordinator{
		source: source,
		gw:     gw,
		board:  board,
		logger: o.logger,
		states: make(map[string]*TaskState),
	}
	if r, ok := source.(Refresher); ok {
		tc.refresher = r
	}
	tc.Sync()
	return tc
}

// Sync reconciles local state with the current task list. New tasks are
// initialised from their recorded status and feedback, tasks no longer on
// the visit are dropped, and existing entries are left untouched.
func (tc *TaskCoordinator) Sync() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.syncLocked()
}

func (tc *TaskCoordinator) syncLocked() *visit.Visit {
	v := tc.source.Visit()
	if v == nil {
		return nil
	}

	seen := make(map[string]bool, len(v.Tasks))
	for _, t := range v.Tasks {
		seen[t.ID] = true
		if _, ok := tc.states[t.ID]; ok {
			continue
		}
		st := &TaskState{Draft: t.Feedback, FeedbackVisible: t.Feedback != ""}
		if t.IsCompleted() {
			st.Selection = SelectYes
		}
		tc.states[t.ID] = st
	}
	for id := range tc.states {
		if !seen[id] {
			delete(tc.states, id)
		}
	}
	return v
}

// Interactive reports whether tasks may be edited, which is only while the
// visit is in progress.
func (tc *TaskCoordinator) Interactive() bool {
	v := tc.source.Visit()
	return v != nil && v.Status == visit.InProgress
}

// State returns a copy of the local state of taskID.
func (tc *TaskCoordinator) State(taskID string) (TaskState, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.syncLocked()
	st, ok := tc.states[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *st, true
}

// AllCompleted reports whether every task on the in-progress visit was
// recorded as completed by the last read.
func (tc *TaskCoordinator) AllCompleted() bool {
	v := tc.source.Visit()
	return v != nil && v.Status == visit.InProgress && v.AllTasksCompleted()
}

// Select records the caregiver's answer. Yes submits immediately; no only
// reveals the feedback field.
func (tc *TaskCoordinator) Select(ctx context.Context, taskID string, sel Selection) error {
	tc.mu.Lock()
	st, err := tc.editableLocked(taskID)
	if err != nil {
		tc.mu.Unlock()
		return err
	}
	if st.Pending {
		tc.mu.Unlock()
		return ErrTaskPending
	}
	st.Selection = sel
	if sel == SelectNo {
		st.FeedbackVisible = true
		tc.mu.Unlock()
		return nil
	}
	st.FeedbackVisible = false
	st.Pending = true
	tc.mu.Unlock()

	tc.submit(ctx, taskID, visit.CompletedUpdate())
	return nil
}

// SetDraft replaces the feedback draft. It never submits.
func (tc *TaskCoordinator) SetDraft(taskID, text string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	st, err := tc.editableLocked(taskID)
	if err != nil {
		return err
	}
	st.Draft = text
	return nil
}

// Blur is called when the feedback field loses focus. A non-blank draft in
// a visible field is submitted as a not-completed report; otherwise nothing
// happens.
func (tc *TaskCoordinator) Blur(ctx context.Context, taskID string) error {
	tc.mu.Lock()
	st, err := tc.editableLocked(taskID)
	if err != nil {
		tc.mu.Unlock()
		return err
	}
	if !st.FeedbackVisible || strings.TrimSpace(st.Draft) == "" {
		tc.mu.Unlock()
		return nil
	}
	if st.Pending {
		tc.mu.Unlock()
		return ErrTaskPending
	}
	st.Pending = true
	draft := st.Draft
	tc.mu.Unlock()

	tc.submit(ctx, taskID, visit.NotCompletedUpdate(draft))
	return nil
}

// Confirm is the explicit form of Blur, e.g. pressing enter in the field.
func (tc *TaskCoordinator) Confirm(ctx context.Context, taskID string) error {
	return tc.Blur(ctx, taskID)
}

func (tc *TaskCoordinator) editableLocked(taskID string) (*TaskState, error) {
	v := tc.syncLocked()
	if v == nil || v.Status != visit.InProgress {
		return nil, ErrNotInteractive
	}
	st, ok := tc.states[taskID]
	if !ok {
		return nil, ErrUnknownTask
	}
	return st, nil
}

func (tc *TaskCoordinator) submit(ctx context.Context, taskID string, upd visit.TaskUpdate) {
	log := tc.logger.With().Str("task_id", taskID).Str("status", string(upd.Status)).Logger()

	_, err := tc.gw.UpdateTask(ctx, taskID, upd)

	tc.mu.Lock()
	if st, ok := tc.states[taskID]; ok {
		st.Pending = false
	}
	tc.mu.Unlock()

	if err != nil {
		log.Debug().Err(err).Msg("task update failed")
		tc.board.Error("Failed to update task: " + err.Error())
		return
	}

	if tc.refresher != nil {
		if err := tc.refresher.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("re-read after task update failed")
		}
	}
	tc.Sync()
}
