package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evcraddock/carevisit/internal/db"
)

// NewVisit describes a visit to schedule. Empty ids are generated.
type NewVisit struct {
	ID          string    `yaml:"id"`
	Client      Client    `yaml:"client"`
	CaregiverID string    `yaml:"caregiver_id"`
	ServiceName string    `yaml:"service_name"`
	Slot        Slot      `yaml:"slot"`
	Tasks       []NewTask `yaml:"tasks"`
	Note        string    `yaml:"note"`
}

// NewTask describes a task to schedule within a visit.
type NewTask struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Repository stores visits and their tasks. It is the server-side owner of
// visit state: every status change is a conditional update, so a transition
// requested from the wrong state fails with ErrInvalidTransition.
type Repository struct {
	db  *db.DB
	now func() time.Time
}

// NewRepository creates a visit repository.
func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database, now: time.Now}
}

const visitSelect = `SELECT v.id, v.client_id, v.caregiver_id, v.service_name, v.slot_from, v.slot_to, v.status,
	v.checkin_time, v.checkin_lat, v.checkin_long,
	v.checkout_time, v.checkout_lat, v.checkout_long, v.note,
	c.user_name, c.email, c.first_name, c.last_name,
	c.house_number, c.street, c.city, c.state, c.pincode, c.latitude, c.longitude
	FROM visits v JOIN clients c ON c.id = v.client_id`

const taskSelect = `SELECT id, visit_id, title, description, status, feedback FROM tasks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Create schedules a visit, creating its client if the client id is new.
func (r *Repository) Create(ctx context.Context, nv NewVisit) (v *Visit, err error) {
	if err := nv.Slot.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(nv.CaregiverID) == "" {
		return nil, fmt.Errorf("%w: caregiver id is required", ErrInvalid)
	}
	for i, t := range nv.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("%w: task %d has no title", ErrInvalid, i+1)
		}
	}

	id := nv.ID
	if id == "" {
		id = uuid.NewString()
	}
	clientID := nv.Client.ID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (also failed to roll back: %v)", err, rbErr)
			}
		}
	}()

	c := nv.Client
	lat, long := c.Address.Location.Nullable()
	_, err = tx.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO clients (id, user_name, email, first_name, last_name, house_number, street, city, state, pincode, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		clientID, c.UserName, c.Email, c.FirstName, c.LastName,
		c.Address.HouseNumber, c.Address.Street, c.Address.City, c.Address.State, c.Address.Pincode,
		lat, long,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting client: %w", err)
	}

	_, err = tx.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO visits (id, client_id, caregiver_id, service_name, slot_from, slot_to, status, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, clientID, nv.CaregiverID, nv.ServiceName,
		dbTime(nv.Slot.From), dbTime(nv.Slot.To), string(Upcoming), nullString(nv.Note),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting visit: %w", err)
	}

	for i, t := range nv.Tasks {
		taskID := t.ID
		if taskID == "" {
			taskID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, r.db.Rebind(
			`INSERT INTO tasks (id, visit_id, position, title, description, status) VALUES (?, ?, ?, ?, ?, ?)`),
			taskID, id, i, t.Title, t.Description, string(TaskPending),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting task %q: %w", t.Title, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing visit: %w", err)
	}

	return r.Get(ctx, id)
}

// Get returns a visit with its client and tasks.
func (r *Repository) Get(ctx context.Context, id string) (*Visit, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(visitSelect+` WHERE v.id = ?`), id)
	v, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading visit: %w", err)
	}

	tasks, err := r.listTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Tasks = tasks

	return v, nil
}

// ListForCaregiver returns a caregiver's visits whose slot starts on the
// given day (in day's location), earliest first.
func (r *Repository) ListForCaregiver(ctx context.Context, caregiverID string, day time.Time) (visits []*Visit, err error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		visitSelect+` WHERE v.caregiver_id = ? AND v.slot_from >= ? AND v.slot_from < ? ORDER BY v.slot_from, v.id`),
		caregiverID, dbTime(start), dbTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visits: %w", err)
	}

	for _, v := range visits {
		tasks, err := r.listTasks(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		v.Tasks = tasks
	}

	return visits, nil
}

// CheckIn moves an upcoming visit to in progress, recording where the
// caregiver checked in.
func (r *Repository) CheckIn(ctx context.Context, id string, loc Coordinate) (*Transition, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	at := dbTime(r.now())
	return r.transition(ctx, id, Upcoming, InProgress, at,
		`UPDATE visits SET status = ?, checkin_time = ?, checkin_lat = ?, checkin_long = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(InProgress), at, loc.Lat, loc.Long, at, id, string(Upcoming),
	)
}

// CheckOut completes an in-progress visit, recording where the caregiver
// checked out.
func (r *Repository) CheckOut(ctx context.Context, id string, loc Coordinate) (*Transition, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	at := dbTime(r.now())
	return r.transition(ctx, id, InProgress, Completed, at,
		`UPDATE visits SET status = ?, checkout_time = ?, checkout_lat = ?, checkout_long = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(Completed), at, loc.Lat, loc.Long, at, id, string(InProgress),
	)
}

// CancelCheckIn returns an in-progress visit to upcoming and forgets the check-in.
func (r *Repository) CancelCheckIn(ctx context.Context, id string) (*Transition, error) {
	at := dbTime(r.now())
	return r.transition(ctx, id, InProgress, Upcoming, at,
		`UPDATE visits SET status = ?, checkin_time = NULL, checkin_lat = NULL, checkin_long = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(Upcoming), at, id, string(InProgress),
	)
}

// UpdateTask records a caregiver's outcome for a task. Only tasks of an
// in-progress visit can be updated.
func (r *Repository) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (*Task, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE tasks SET status = ?, feedback = ?, updated_at = ?
		 WHERE id = ? AND visit_id IN (SELECT id FROM visits WHERE status = ?)`),
		string(upd.TaskStatus()), nullString(upd.Feedback), dbTime(r.now()), taskID, string(InProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: task %s belongs to a visit that is not in progress", ErrInvalidTransition, taskID)
	}

	return t, nil
}

// MarkMissed marks upcoming visits whose slot ended before now as missed.
// It returns the number of visits changed.
func (r *Repository) MarkMissed(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE visits SET status = ?, updated_at = ? WHERE status = ? AND slot_to < ?`),
		string(Missed), dbTime(now), string(Upcoming), dbTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("marking missed visits: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Delete removes a visit and its tasks.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM visits WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting visit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}

	return nil
}

// transition runs a conditional status update and explains a miss.
func (r *Repository) transition(ctx context.Context, id string, from, to Status, at time.Time, query string, args ...interface{}) (*Transition, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("updating visit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, r.transitionError(ctx, id, from)
	}

	return &Transition{VisitID: id, Status: to, At: at}, nil
}

func (r *Repository) transitionError(ctx context.Context, id string, want Status) error {
	var current Status
	err := r.db.QueryRowContext(ctx, r.db.Rebind("SELECT status FROM visits WHERE id = ?"), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading visit status: %w", err)
	}
	return fmt.Errorf("%w: visit is %s, not %s", ErrInvalidTransition, current, want)
}

// GetTask returns a single task.
func (r *Repository) GetTask(ctx context.Context, id string) (*Task, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(taskSelect+" WHERE id = ?"), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	return t, nil
}

func (r *Repository) listTasks(ctx context.Context, visitID string) (tasks []Task, err error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(taskSelect+" WHERE visit_id = ? ORDER BY position"), visitID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	tasks = make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	return tasks, nil
}

func scanVisit(row rowScanner) (*Visit, error) {
	var (
		v                         Visit
		checkinTime, checkoutTime sql.NullTime
		checkinLat, checkinLong   sql.NullFloat64
		checkoutLat, checkoutLong sql.NullFloat64
		clientLat, clientLong     sql.NullFloat64
		note                      sql.NullString
	)

	err := row.Scan(
		&v.ID, &v.ClientID, &v.CaregiverID, &v.ServiceName, &v.Slot.From, &v.Slot.To, &v.Status,
		&checkinTime, &checkinLat, &checkinLong,
		&checkoutTime, &checkoutLat, &checkoutLong, &note,
		&v.Client.UserName, &v.Client.Email, &v.Client.FirstName, &v.Client.LastName,
		&v.Client.Address.HouseNumber, &v.Client.Address.Street, &v.Client.Address.City,
		&v.Client.Address.State, &v.Client.Address.Pincode, &clientLat, &clientLong,
	)
	if err != nil {
		return nil, err
	}

	v.Slot.From = v.Slot.From.UTC()
	v.Slot.To = v.Slot.To.UTC()
	v.Client.ID = v.ClientID
	v.Client.Address.Location = nullLocation(clientLat, clientLong)
	if checkinTime.Valid {
		v.CheckIn = &CheckEvent{Time: checkinTime.Time.UTC(), Location: nullLocation(checkinLat, checkinLong)}
	}
	if checkoutTime.Valid {
		v.CheckOut = &CheckEvent{Time: checkoutTime.Time.UTC(), Location: nullLocation(checkoutLat, checkoutLong)}
	}
	v.Note = note.String
	v.Tasks = make([]Task, 0)

	return &v, nil
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t        Task
		feedback sql.NullString
	)
	if err := row.Scan(&t.ID, &t.VisitID, &t.Title, &t.Description, &t.Status, &feedback); err != nil {
		return nil, err
	}
	t.Feedback = feedback.String
	return &t, nil
}

func nullLocation(lat, long sql.NullFloat64) Location {
	if !lat.Valid || !long.Valid {
		return Location{}
	}
	return At(Coordinate{Lat: lat.Float64, Long: long.Float64})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// dbTime normalizes timestamps so SQLite's text comparison orders them correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
