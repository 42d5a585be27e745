package download

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryAddAndGet(t *testing.T) {
	r := NewTaskRegistry(4)
	task := NewTask("https://e.com/a", FormatMP3, DefaultQuality)
	if err := r.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(task); err == nil {
		t.Fatal("duplicate Add succeeded")
	}
	if r.Size() != 1 {
		t.Fatalf("Size = %d, want 1", r.Size())
	}

	got := r.Get(task.ID)
	if got == nil || got.URL != task.URL {
		t.Fatalf("Get = %+v, want %s", got, task.URL)
	}
	// mutating the copy must not touch the stored task
	got.Status = StatusError
	if r.Get(task.ID).Status != StatusPending {
		t.Fatal("Get returned a live pointer, not a copy")
	}

	if r.Get("missing") != nil {
		t.Fatal("Get on unknown ID returned a task")
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewTaskRegistry(4)
	var ids []string
	for i := 0; i < 5; i++ {
		task := NewTask(fmt.Sprintf("https://e.com/%d", i), FormatMP3, DefaultQuality)
		if err := r.Add(task); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
		ids = append(ids, task.ID)
	}
	snap := r.Snapshot("")
	if len(snap) != 5 {
		t.Fatalf("Snapshot len = %d, want 5", len(snap))
	}
	for i, task := range snap {
		if task.ID != ids[i] {
			t.Fatalf("Snapshot[%d] = %s, want %s", i, task.ID, ids[i])
		}
	}

	one := r.Snapshot(ids[2])
	if len(one) != 1 || one[0].ID != ids[2] {
		t.Fatalf("Snapshot(id) = %v", one)
	}
	if got := r.Snapshot("missing"); len(got) != 0 {
		t.Fatalf("Snapshot(missing) = %v, want empty", got)
	}
}

func TestRegistryMutators(t *testing.T) {
	r := NewTaskRegistry(4)
	task := NewTask("https://e.com/a", FormatOpus, DefaultQuality)
	if err := r.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.SetProgress(task.ID, 42.5); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	// progress overwrites are allowed to go backwards
	if err := r.SetProgress(task.ID, 10.0); err != nil {
		t.Fatalf("SetProgress back: %v", err)
	}
	if got := r.Get(task.ID).Progress; got != 10.0 {
		t.Fatalf("Progress = %v, want 10.0", got)
	}

	if err := r.SetStatus(task.ID, StatusError, "bad link"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got := r.Get(task.ID)
	if got.Status != StatusError || got.Error != "bad link" {
		t.Fatalf("after SetStatus: %+v", got)
	}

	if err := r.Attach(task.ID, 7); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := r.SetMeta(task.ID, "Title", 120, "https://t.example/x.jpg"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	// zero values leave existing metadata alone
	if err := r.SetMeta(task.ID, "", 0, ""); err != nil {
		t.Fatalf("SetMeta zero: %v", err)
	}
	got = r.Get(task.ID)
	if got.DBID != 7 || got.Title != "Title" || got.Duration != 120 {
		t.Fatalf("after meta: %+v", got)
	}

	if err := r.Update("missing", func(*Task) {}); err == nil {
		t.Fatal("Update on unknown ID succeeded")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewTaskRegistry(64)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			task := NewTask(fmt.Sprintf("https://e.com/%d", n), FormatMP3, DefaultQuality)
			if err := r.Add(task); err != nil {
				t.Errorf("Add: %v", err)
				return
			}
			for p := 0; p <= 100; p += 10 {
				_ = r.SetProgress(task.ID, float64(p))
				_ = r.Snapshot("")
			}
		}(i)
	}
	wg.Wait()
	if r.Size() != 16 {
		t.Fatalf("Size = %d, want 16", r.Size())
	}
}
