package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func photoPayload(key string) TaskPayload {
	return TaskPayload{Type: TaskTypePhoto, StorageKey: key}
}

func TestAddTaskRequiresType(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.AddTask(context.Background(), TaskPayload{}, TaskOptions{}); err == nil {
		t.Fatal("AddTask with empty type succeeded, want error")
	}
}

func TestClaimOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Insertion order: low priority first, then two high-priority tasks.
	// Claims must come back highest priority first, oldest first within a
	// priority. Millisecond timestamps need a short gap between inserts.
	lowID, err := db.AddTask(ctx, photoPayload("low.jpg"), TaskOptions{Priority: 0})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	highOldID, err := db.AddTask(ctx, photoPayload("high-old.jpg"), TaskOptions{Priority: 5})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	highNewID, err := db.AddTask(ctx, photoPayload("high-new.jpg"), TaskOptions{Priority: 5})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	wantOrder := []int64{highOldID, highNewID, lowID}
	for i, wantID := range wantOrder {
		task, err := db.ClaimNextTask(ctx)
		if err != nil {
			t.Fatalf("ClaimNextTask #%d: %v", i, err)
		}
		if task == nil {
			t.Fatalf("ClaimNextTask #%d returned nil, want task %d", i, wantID)
		}
		if task.ID != wantID {
			t.Errorf("claim #%d = task %d, want %d", i, task.ID, wantID)
		}
		if task.Status != TaskStatusInStages {
			t.Errorf("claimed task status = %q, want %q", task.Status, TaskStatusInStages)
		}
	}

	task, err := db.ClaimNextTask(ctx)
	if err != nil {
		t.Fatalf("ClaimNextTask on drained queue: %v", err)
	}
	if task != nil {
		t.Errorf("ClaimNextTask on drained queue = %+v, want nil", task)
	}
}

func TestClaimSkipsDelayedRetries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.AddTask(ctx, photoPayload("img.jpg"), TaskOptions{})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := db.ClaimNextTask(ctx); err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}

	// The failed attempt reschedules the task at least one second out.
	retry, err := db.MarkTaskFailed(ctx, id, "transient storage error")
	if err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}
	if !retry {
		t.Fatal("MarkTaskFailed = false on first attempt, want retry")
	}

	task, err := db.ClaimNextTask(ctx)
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task != nil {
		t.Errorf("claimed task %d before its retry delay elapsed", task.ID)
	}

	got, err := db.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != TaskStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.ErrorMessage != "transient storage error" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if !got.CreatedAt.After(time.Now()) {
		t.Errorf("created_at %v not pushed into the future", got.CreatedAt)
	}
}

func TestTaskFailsPermanentlyAtAttemptBudget(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.AddTask(ctx, photoPayload("img.jpg"), TaskOptions{MaxAttempts: 2})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	retry, err := db.MarkTaskFailed(ctx, id, "first failure")
	if err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}
	if !retry {
		t.Fatal("first failure should retry")
	}

	retry, err = db.MarkTaskFailed(ctx, id, "second failure")
	if err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}
	if retry {
		t.Fatal("second failure of a 2-attempt task should be terminal")
	}

	got, err := db.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != TaskStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
	if got.ErrorMessage != "second failure" {
		t.Errorf("error message = %q, want last failure recorded", got.ErrorMessage)
	}
}

func TestMarkTaskFailedDefaultsErrorMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.AddTask(ctx, photoPayload("img.jpg"), TaskOptions{})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := db.MarkTaskFailed(ctx, id, ""); err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}

	got, _ := db.GetTask(ctx, id)
	if got.ErrorMessage != "Unknown error" {
		t.Errorf("error message = %q, want Unknown error", got.ErrorMessage)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 5, want: 16 * time.Second},
		{attempt: 6, want: 30 * time.Second},
		{attempt: 7, want: 30 * time.Second},
		{attempt: 20, want: 30 * time.Second},
	}

	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConcurrentClaimsNeverShareATask(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const taskCount = 20
	for i := 0; i < taskCount; i++ {
		if _, err := db.AddTask(ctx, photoPayload("img.jpg"), TaskOptions{}); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	var mu sync.Mutex
	claimed := make(map[int64]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := db.ClaimNextTask(ctx)
				if err != nil {
					t.Errorf("ClaimNextTask: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != taskCount {
		t.Errorf("claimed %d distinct tasks, want %d", len(claimed), taskCount)
	}
	for id, count := range claimed {
		if count != 1 {
			t.Errorf("task %d claimed %d times", id, count)
		}
	}
}

func TestTaskStageAndCompletion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.AddTask(ctx, photoPayload("img.jpg"), TaskOptions{})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := db.ClaimNextTask(ctx); err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if err := db.SetTaskStage(ctx, id, "thumbnail"); err != nil {
		t.Fatalf("SetTaskStage: %v", err)
	}
	if err := db.MarkTaskCompleted(ctx, id); err != nil {
		t.Fatalf("MarkTaskCompleted: %v", err)
	}

	got, err := db.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != TaskStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.StatusStage != "thumbnail" {
		t.Errorf("stage = %q, want thumbnail", got.StatusStage)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestQueueStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := db.AddTask(ctx, photoPayload("img.jpg"), TaskOptions{}); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}
	task, err := db.ClaimNextTask(ctx)
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if err := db.MarkTaskCompleted(ctx, task.ID); err != nil {
		t.Fatalf("MarkTaskCompleted: %v", err)
	}

	stats, err := db.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats[string(TaskStatusPending)] != 2 {
		t.Errorf("pending = %d, want 2", stats[string(TaskStatusPending)])
	}
	if stats[string(TaskStatusCompleted)] != 1 {
		t.Errorf("completed = %d, want 1", stats[string(TaskStatusCompleted)])
	}
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lat, lon := 48.8566, 2.3522
	id, err := db.AddTask(ctx, TaskPayload{
		Type:      TaskTypeReverseGeocode,
		PhotoID:   "photo-1",
		Latitude:  &lat,
		Longitude: &lon,
	}, TaskOptions{Priority: 2})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	got, err := db.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Payload.Type != TaskTypeReverseGeocode || got.Payload.PhotoID != "photo-1" {
		t.Errorf("payload = %+v", got.Payload)
	}
	if got.Payload.Latitude == nil || *got.Payload.Latitude != lat {
		t.Errorf("latitude = %v, want %v", got.Payload.Latitude, lat)
	}
	if got.Priority != 2 {
		t.Errorf("priority = %d, want 2", got.Priority)
	}
}
