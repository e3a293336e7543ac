package cli

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/carevisit/internal/auth"
	"github.com/evcraddock/carevisit/internal/db"
	"github.com/evcraddock/carevisit/internal/visit"
	"github.com/evcraddock/carevisit/internal/web"
)

var testSlot = time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)

// testEnv starts an API server with one upcoming visit V1 (tasks T1, T2)
// for caregiver cg-1 and points the CLI at it.
func testEnv(t *testing.T) *web.Server {
	t.Helper()

	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if cerr := d.Close(); cerr != nil {
			t.Errorf("close db: %v", cerr)
		}
	})

	srv := web.NewServer(d, auth.Config{})
	ctx := context.Background()

	rawKey, _, err := auth.NewAPIKeyStore(d).Create(ctx, "test", "cg-1")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}

	if _, err := srv.Visits().Create(ctx, visit.NewVisit{
		ID:          "V1",
		Client:      visit.Client{ID: "C1", FirstName: "Melisa", LastName: "Adam"},
		CaregiverID: "cg-1",
		ServiceName: "Personal care",
		Slot:        visit.Slot{From: testSlot, To: testSlot.Add(time.Hour)},
		Tasks: []visit.NewTask{
			{ID: "T1", Title: "Give medication"},
			{ID: "T2", Title: "Prepare lunch"},
		},
	}); err != nil {
		t.Fatalf("create visit: %v", err)
	}

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("CV_SERVER_URL", ts.URL)
	t.Setenv("CV_API_KEY", rawKey)
	t.Setenv("CV_CAREGIVER_ID", "")

	return srv
}

func visitStatus(t *testing.T, srv *web.Server, id string) visit.Status {
	t.Helper()
	v, err := srv.Visits().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get visit: %v", err)
	}
	return v.Status
}

func TestSchedulesCommand(t *testing.T) {
	testEnv(t)

	out, err := executeCommand("schedules", "--caregiver", "cg-1", "--date", "2026-02-08")
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	if !strings.Contains(out, "V1") || !strings.Contains(out, "Melisa Adam") {
		t.Errorf("output = %q", out)
	}

	out, err = executeCommand("schedules", "--caregiver", "cg-1", "--date", "2026-02-08", "--format", "json")
	if err != nil {
		t.Fatalf("schedules json: %v", err)
	}
	var visits []visit.Visit
	if err := json.Unmarshal([]byte(out), &visits); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(visits) != 1 || visits[0].ID != "V1" {
		t.Errorf("visits = %+v", visits)
	}

	if _, err := executeCommand("schedules", "--date", "08/02/2026"); err == nil {
		t.Error("expected error for bad --date")
	}
}

func TestShowCommand(t *testing.T) {
	testEnv(t)

	out, err := executeCommand("show", "V1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Personal care", "Upcoming", "Give medication", "Available: check-in"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	_, err = executeCommand("show", "NOPE")
	if err == nil || !strings.Contains(err.Error(), "visit NOPE not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestCheckInWithLocation(t *testing.T) {
	srv := testEnv(t)

	out, err := executeCommand("checkin", "V1", "--lat", "12.9716", "--long", "77.5946")
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if !strings.Contains(out, "Successfully checked in!") {
		t.Errorf("output = %q", out)
	}
	if got := visitStatus(t, srv, "V1"); got != visit.InProgress {
		t.Errorf("status = %s, want in_progress", got)
	}

	// A second check-in is rejected locally without reaching the server.
	_, err = executeCommand("checkin", "V1", "--lat", "12.9716", "--long", "77.5946")
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("err = %v, want transition rejected", err)
	}
}

func TestCheckInWithoutLocationProvider(t *testing.T) {
	srv := testEnv(t)

	out, err := executeCommand("checkin", "V1")
	if err == nil || !Reported(err) {
		t.Fatalf("err = %v, want reported error", err)
	}
	if !strings.Contains(out, "Failed to get location: geolocation is not supported") {
		t.Errorf("output = %q", out)
	}
	if got := visitStatus(t, srv, "V1"); got != visit.Upcoming {
		t.Errorf("status = %s, want upcoming", got)
	}
}

func TestCheckInUsesConfiguredLocation(t *testing.T) {
	srv := testEnv(t)

	lat, long := 12.9716, 77.5946
	cfg := CLIConfig{}
	cfg.Location.Lat = &lat
	cfg.Location.Long = &long
	if err := saveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	if _, err := executeCommand("checkin", "V1"); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	v, err := srv.Visits().Get(context.Background(), "V1")
	if err != nil {
		t.Fatal(err)
	}
	if v.CheckIn == nil || v.CheckIn.Location.Lat != lat {
		t.Errorf("check-in = %+v, want recorded at %v", v.CheckIn, lat)
	}
}

func TestCancelAndCheckOut(t *testing.T) {
	srv := testEnv(t)
	loc := []string{"--lat", "12.9716", "--long", "77.5946"}

	if _, err := executeCommand(append([]string{"checkin", "V1"}, loc...)...); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	out, err := executeCommand("cancel-checkin", "V1")
	if err != nil {
		t.Fatalf("cancel-checkin: %v", err)
	}
	if !strings.Contains(out, "Check-in cancelled successfully!") {
		t.Errorf("output = %q", out)
	}
	if got := visitStatus(t, srv, "V1"); got != visit.Upcoming {
		t.Errorf("status = %s, want upcoming", got)
	}

	if _, err := executeCommand(append([]string{"checkin", "V1"}, loc...)...); err != nil {
		t.Fatalf("checkin again: %v", err)
	}

	out, err = executeCommand(append([]string{"checkout", "V1", "--format", "json"}, loc...)...)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	var res lifecycleOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if res.Notification != "success" || res.Message != "Successfully checked out!" {
		t.Errorf("result = %+v", res)
	}
	if res.Visit == nil || res.Visit.Status != visit.Completed {
		t.Errorf("visit = %+v, want completed", res.Visit)
	}
}

func TestTaskCommand(t *testing.T) {
	srv := testEnv(t)

	_, err := executeCommand("task", "V1", "1", "yes")
	if err == nil || !strings.Contains(err.Error(), "in progress") {
		t.Fatalf("err = %v, want not in progress", err)
	}

	if _, err := executeCommand("checkin", "V1", "--lat", "1", "--long", "2"); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	out, err := executeCommand("task", "V1", "1", "yes")
	if err != nil {
		t.Fatalf("task yes: %v", err)
	}
	if !strings.Contains(out, "Task updated") || strings.Contains(out, "All tasks completed!") {
		t.Errorf("output = %q", out)
	}

	out, err = executeCommand("task", "V1", "T2", "no", "--feedback", "client unavailable")
	if err != nil {
		t.Fatalf("task no: %v", err)
	}
	if !strings.Contains(out, "Task updated") {
		t.Errorf("output = %q", out)
	}

	task, err := srv.Visits().GetTask(context.Background(), "T2")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != visit.TaskPending || task.Feedback != "client unavailable" {
		t.Errorf("task = %+v, want pending with feedback", task)
	}

	out, err = executeCommand("task", "V1", "T2", "y")
	if err != nil {
		t.Fatalf("task yes after no: %v", err)
	}
	if !strings.Contains(out, "All tasks completed!") {
		t.Errorf("output = %q, want all tasks completed", out)
	}
}

func TestSeedAndAPIKeyCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "seed.db")
	seedPath := filepath.Join(t.TempDir(), "visits.yaml")
	seed := `visits:
  - id: S1
    caregiver_id: cg-2
    service_name: Companionship
    client:
      first_name: Ravi
      last_name: Kumar
      address:
        city: Bengaluru
        location: {lat: 12.97, long: 77.59}
    slot:
      from: 2026-02-08T09:00:00Z
      to: 2026-02-08T10:00:00Z
    tasks:
      - title: Walk
      - title: Read the paper
`
	if err := os.WriteFile(seedPath, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand("seed", seedPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, "Created visit S1 (Ravi Kumar, 2 tasks)") {
		t.Errorf("seed output = %q", out)
	}

	out, err = executeCommand("apikey", "create", "phone", "--caregiver", "cg-2", "--db", dbPath)
	if err != nil {
		t.Fatalf("apikey create: %v", err)
	}
	if !strings.Contains(out, "cv_") {
		t.Errorf("create output = %q, want raw key", out)
	}

	out, err = executeCommand("apikey", "list", "--db", dbPath, "--format", "json")
	if err != nil {
		t.Fatalf("apikey list: %v", err)
	}
	var keys []auth.APIKey
	if err := json.Unmarshal([]byte(out), &keys); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(keys) != 1 || keys[0].CaregiverID != "cg-2" {
		t.Fatalf("keys = %+v", keys)
	}

	if _, err := executeCommand("apikey", "revoke", keys[0].ID, "--db", dbPath); err != nil {
		t.Fatalf("apikey revoke: %v", err)
	}
	_, err = executeCommand("apikey", "revoke", keys[0].ID, "--db", dbPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestStatusCommand(t *testing.T) {
	testEnv(t)

	out, err := executeCommand("status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "connected and authenticated") || !strings.Contains(out, "cg-1") {
		t.Errorf("output = %q", out)
	}

	t.Setenv("CV_API_KEY", "cv_unknown")
	out, err = executeCommand("status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "invalid API key") {
		t.Errorf("output = %q", out)
	}
}
