package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/evcraddock/carevisit/internal/visit"
)

type call struct {
	Method string
	ID     string
	Coord  visit.Coordinate
	Update visit.TaskUpdate
}

// fakeGateway is an in-memory Gateway that applies transitions the way the
// server does, so re-reads observe them.
type fakeGateway struct {
	mu     sync.Mutex
	visits map[string]*visit.Visit
	calls  []call

	getErr    error
	mutateErr error
	taskErr   map[string]error
	// block, when set, is received from before a mutation returns.
	block chan struct{}
}

func newFakeGateway(vs ...*visit.Visit) *fakeGateway {
	g := &fakeGateway{visits: make(map[string]*visit.Visit), taskErr: make(map[string]error)}
	for _, v := range vs {
		g.visits[v.ID] = v
	}
	return g
}

func (g *fakeGateway) record(c call) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()
}

func (g *fakeGateway) callsTo(method string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) mutations() int {
	return len(g.callsTo("CheckIn")) + len(g.callsTo("CheckOut")) + len(g.callsTo("CancelCheckIn"))
}

func (g *fakeGateway) GetVisit(_ context.Context, id string) (*visit.Visit, error) {
	g.record(call{Method: "GetVisit", ID: id})
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	v, ok := g.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	cp := *v
	cp.Tasks = append([]visit.Task(nil), v.Tasks...)
	return &cp, nil
}

func (g *fakeGateway) transition(id string, to visit.Status) (*visit.Transition, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutateErr != nil {
		return nil, g.mutateErr
	}
	v, ok := g.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	v.Status = to
	return &visit.Transition{VisitID: id, Status: to, At: time.Now()}, nil
}

func (g *fakeGateway) CheckIn(_ context.Context, id string, at visit.Coordinate) (*visit.Transition, error) {
	g.record(call{Method: "CheckIn", ID: id, Coord: at})
	return g.transition(id, visit.InProgress)
}

func (g *fakeGateway) CheckOut(_ context.Context, id string, at visit.Coordinate) (*visit.Transition, error) {
	g.record(call{Method: "CheckOut", ID: id, Coord: at})
	return g.transition(id, visit.Completed)
}

func (g *fakeGateway) CancelCheckIn(_ context.Context, id string) (*visit.Transition, error) {
	g.record(call{Method: "CancelCheckIn", ID: id})
	return g.transition(id, visit.Upcoming)
}

func (g *fakeGateway) UpdateTask(_ context.Context, taskID string, upd visit.TaskUpdate) (*visit.Task, error) {
	g.record(call{Method: "UpdateTask", ID: taskID, Update: upd})
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.taskErr[taskID]; err != nil {
		return nil, err
	}
	for _, v := range g.visits {
		for i := range v.Tasks {
			if v.Tasks[i].ID != taskID {
				continue
			}
			v.Tasks[i].Status = upd.TaskStatus()
			v.Tasks[i].Feedback = upd.Feedback
			t := v.Tasks[i]
			return &t, nil
		}
	}
	return nil, visit.ErrNotFound
}

func testVisit(id string, status visit.Status, tasks ...visit.Task) *visit.Visit {
	from := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	for i := range tasks {
		tasks[i].VisitID = id
		if tasks[i].Status == "" {
			tasks[i].Status = visit.TaskPending
		}
	}
	return &visit.Visit{
		ID:          id,
		CaregiverID: "cg-1",
		ServiceName: "Personal care",
		Slot:        visit.Slot{From: from, To: from.Add(time.Hour)},
		Status:      status,
		Tasks:       tasks,
	}
}
