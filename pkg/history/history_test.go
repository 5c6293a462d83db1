package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"github.com/DethRaid/SanityEngine/pkg/pipeline"
)

func openStore(t *testing.T, keep int) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), ".sanity-build", "history.db"), keep)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func makeReport(id string, started time.Time) *pipeline.Report {
	return &pipeline.Report{
		ID:       id,
		Started:  started,
		Finished: started.Add(time.Minute),
		Success:  false,
		Stages: []*pipeline.StageResult{
			{
				Stage:    pipeline.StageBuild,
				Status:   pipeline.StatusFailed,
				Started:  started,
				Duration: time.Minute,
				Output:   strings.Repeat("error C2065: 'frame_time': undeclared identifier\n", 200),
				Kind:     pipeline.BuildFailure,
				Error:    "msbuild failed: exit status 1",
			},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t, 0)
	started := time.Date(2021, 3, 14, 12, 0, 0, 0, time.UTC)
	report := makeReport("run1", started)

	if err := store.Record(context.Background(), report); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Get("run1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.ID != "run1" || !got.Started.Equal(started) || got.Success {
		t.Errorf("unexpected report %+v", got)
	}

	if len(got.Stages) != 1 {
		t.Fatalf("expected one stage, got %d", len(got.Stages))
	}
	stage := got.Stages[0]
	if stage.Kind != pipeline.BuildFailure || stage.Status != pipeline.StatusFailed || stage.Duration != time.Minute {
		t.Errorf("unexpected stage %+v", stage)
	}
	if stage.Output != "" {
		t.Error("output should be stored separately")
	}

	output, err := store.Output("run1", pipeline.StageBuild)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if output != report.Stages[0].Output {
		t.Errorf("output didn't survive the round trip, got %d bytes", len(output))
	}

	output, err = store.Output("run1", pipeline.StageBindings)
	if err != nil || output != "" {
		t.Errorf("expected no output for bindings, got %q %v", output, err)
	}
}

func TestUnknownRun(t *testing.T) {
	store := openStore(t, 0)

	_, err := store.Get("missing")
	if !eris.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = store.Output("missing", pipeline.StageBuild)
	if !eris.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndPrune(t *testing.T) {
	store := openStore(t, 3)
	base := time.Date(2021, 3, 14, 12, 0, 0, 0, time.UTC)

	// record out of order to make sure the list is sorted by start time
	for _, idx := range []int{2, 0, 4, 1, 3} {
		err := store.Record(context.Background(), makeReport(fmt.Sprintf("run%d", idx), base.Add(time.Duration(idx)*time.Hour)))
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	reports, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	ids := make([]string, len(reports))
	for idx, report := range reports {
		ids[idx] = report.ID
	}
	if strings.Join(ids, ",") != "run4,run3,run2" {
		t.Errorf("unexpected runs %v", ids)
	}

	_, err = store.Output("run0", pipeline.StageBuild)
	if !eris.Is(err, ErrNotFound) {
		t.Errorf("output of pruned run is still available: %v", err)
	}
}

func TestOpenIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	started := time.Now()
	_, err = Open(path, 0)
	if err == nil {
		t.Fatal("expected the second Open to time out")
	}

	if time.Since(started) > 10*time.Second {
		t.Error("the lock timeout wasn't applied")
	}
}
