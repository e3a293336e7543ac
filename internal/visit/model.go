// Package visit provides the caregiver visit (schedule) domain model and data access.
package visit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a visit or task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a visit is not in a state that
	// allows the requested change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalid is returned when input fails validation.
	ErrInvalid = errors.New("invalid input")
)

// Status is the lifecycle state of a visit.
type Status string

const (
	Upcoming   Status = "upcoming"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Missed     Status = "missed"
)

// ValidStatuses is the set of recognized visit statuses.
var ValidStatuses = []Status{Upcoming, InProgress, Completed, Missed}

// IsValid checks if a status is recognized.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are offered.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Missed
}

// Label returns a human-readable label for the status.
func (s Status) Label() string {
	switch s {
	case Upcoming:
		return "Upcoming"
	case InProgress:
		return "In progress"
	case Completed:
		return "Completed"
	case Missed:
		return "Missed"
	default:
		return string(s)
	}
}

// ParseStatus normalizes a status reported by the server ("IN_PROGRESS",
// "in_progress") into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown visit status %q", s)
	}
	return st, nil
}

// TaskStatus is the recorded state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Slot is the scheduled time window of a visit.
type Slot struct {
	From time.Time `json:"from" yaml:"from"`
	To   time.Time `json:"to" yaml:"to"`
}

// Validate checks that the slot starts before it ends.
func (s Slot) Validate() error {
	if s.From.IsZero() || s.To.IsZero() {
		return fmt.Errorf("%w: slot from and to are required", ErrInvalid)
	}
	if !s.From.Before(s.To) {
		return fmt.Errorf("%w: slot from %s is not before to %s",
			ErrInvalid, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
	}
	return nil
}

// Duration returns the length of the slot.
func (s Slot) Duration() time.Duration {
	return s.To.Sub(s.From)
}

// Address is a client's street address and its coordinates.
type Address struct {
	HouseNumber string   `json:"house_number" yaml:"house_number"`
	Street      string   `json:"street" yaml:"street"`
	City        string   `json:"city" yaml:"city"`
	State       string   `json:"state" yaml:"state"`
	Pincode     string   `json:"pincode" yaml:"pincode"`
	Location    Location `json:"location" yaml:"location"`
}

// String joins the non-empty address parts with commas.
func (a Address) String() string {
	var parts []string
	for _, p := range []string{a.HouseNumber, a.Street, a.City, a.State, a.Pincode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Client is the person receiving care at a visit.
type Client struct {
	ID        string  `json:"id" yaml:"id"`
	UserName  string  `json:"user_name" yaml:"user_name"`
	Email     string  `json:"email" yaml:"email"`
	FirstName string  `json:"first_name" yaml:"first_name"`
	LastName  string  `json:"last_name" yaml:"last_name"`
	Address   Address `json:"address" yaml:"address"`
}

// FullName returns "First Last".
func (c Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CheckEvent records when and where a caregiver checked in or out.
type CheckEvent struct {
	Time     time.Time `json:"time"`
	Location Location  `json:"location"`
}

// Task is a unit of work within a visit. Tasks keep the order they were
// scheduled in.
type Task struct {
	ID          string     `json:"id" yaml:"id"`
	VisitID     string     `json:"visit_id" yaml:"-"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Status      TaskStatus `json:"status" yaml:"status"`
	Feedback    string     `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// IsCompleted reports whether the task was reported done.
func (t Task) IsCompleted() bool {
	return t.Status == TaskCompleted
}

// Visit is one scheduled caregiver/client appointment.
type Visit struct {
	ID          string      `json:"id"`
	ClientID    string      `json:"client_id"`
	Client      Client      `json:"client"`
	CaregiverID string      `json:"caregiver_id"`
	ServiceName string      `json:"service_name"`
	Slot        Slot        `json:"scheduled_slot"`
	Status      Status      `json:"status"`
	CheckIn     *CheckEvent `json:"check_in,omitempty"`
	CheckOut    *CheckEvent `json:"check_out,omitempty"`
	Tasks       []Task      `json:"tasks"`
	Note        string      `json:"note,omitempty"`
}

// Task returns the task with the given id.
func (v *Visit) Task(id string) (Task, bool) {
	for _, t := range v.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// AllTasksCompleted reports whether the visit has tasks and every one is completed.
func (v *Visit) AllTasksCompleted() bool {
	if len(v.Tasks) == 0 {
		return false
	}
	for _, t := range v.Tasks {
		if !t.IsCompleted() {
			return false
		}
	}
	return true
}

// Transition is the server's acknowledgement of a check-in, check-out or
// cancelled check-in.
type Transition struct {
	VisitID string    `json:"visit_id"`
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
}

// TaskOutcome is what a caregiver reports for a task.
type TaskOutcome string

const (
	OutcomeCompleted    TaskOutcome = "completed"
	OutcomeNotCompleted TaskOutcome = "not_completed"
)

// TaskUpdate is the payload of a task submission.
type TaskUpdate struct {
	Status   TaskOutcome `json:"status"`
	Done     bool        `json:"done"`
	Feedback string      `json:"feedback,omitempty"`
}

// CompletedUpdate reports a task as done.
func CompletedUpdate() TaskUpdate {
	return TaskUpdate{Status: OutcomeCompleted, Done: true}
}

// NotCompletedUpdate reports a task as not done, with the reason.
func NotCompletedUpdate(feedback string) TaskUpdate {
	return TaskUpdate{Status: OutcomeNotCompleted, Done: true, Feedback: feedback}
}

// Validate enforces that feedback accompanies, and only accompanies, a
// not-completed outcome.
func (u TaskUpdate) Validate() error {
	if !u.Done {
		return fmt.Errorf("%w: done must be true", ErrInvalid)
	}
	switch u.Status {
	case OutcomeCompleted:
		if u.Feedback != "" {
			return fmt.Errorf("%w: completed tasks carry no feedback", ErrInvalid)
		}
	case OutcomeNotCompleted:
		if strings.TrimSpace(u.Feedback) == "" {
			return fmt.Errorf("%w: feedback is required when a task is not completed", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown task status %q", ErrInvalid, u.Status)
	}
	return nil
}

// TaskStatus returns the recorded status an update produces.
func (u TaskUpdate) TaskStatus() TaskStatus {
	if u.Status == OutcomeCompleted {
		return TaskCompleted
	}
	return TaskPending
}
