package service

import (
	"errors"
	"testing"
	"time"
)

func TestProgress_Percent(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		processed int
		want      int
	}{
		{"пустой пакет", 0, 0, 0},
		{"начало", 3, 0, 0},
		{"треть", 3, 1, 33},
		{"две трети", 3, 2, 67},
		{"половина", 2, 1, 50},
		{"всё", 7, 7, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Progress{Total: tt.total, Processed: tt.processed}
			if got := p.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, ожидался %d", got, tt.want)
			}
		})
	}
}

func TestProgressRegistry_StartConflict(t *testing.T) {
	r := NewProgressRegistry(10, time.Hour)

	if err := r.Start("batch-1", 0); err != nil {
		t.Fatalf("Start ошибка: %v", err)
	}
	if err := r.Start("batch-1", 0); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Start: ожидалась ErrConflict, получена %v", err)
	}

	p, err := r.Get("batch-1")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if p.Status != ProgressStarting {
		t.Errorf("Status = %q, ожидался starting", p.Status)
	}
	if p.StartedAt.IsZero() {
		t.Error("StartedAt не заполнен")
	}
}

func TestProgressRegistry_GetUnknown(t *testing.T) {
	r := NewProgressRegistry(10, time.Hour)
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получена %v", err)
	}
}

func TestProgressRegistry_Lifecycle(t *testing.T) {
	r := NewProgressRegistry(10, time.Hour)
	_ = r.Start("b", 0)

	r.MarkProcessing("b", 3)
	r.RecordSuccess("b", "a.jpg")
	r.RecordFailure("b", "b.jpg", "duplicate")

	p, _ := r.Get("b")
	if p.Status != ProgressProcessing {
		t.Errorf("Status = %q, ожидался processing", p.Status)
	}
	if p.Total != 3 || p.Processed != 2 || p.Success != 1 || p.Failed != 1 {
		t.Errorf("счётчики total=%d processed=%d success=%d failed=%d, ожидались 3/2/1/1",
			p.Total, p.Processed, p.Success, p.Failed)
	}
	if p.Percent() != 67 {
		t.Errorf("Percent = %d, ожидался 67", p.Percent())
	}
	if len(p.Files) != 1 || p.Files[0] != "a.jpg" {
		t.Errorf("Files = %v, ожидался [a.jpg]", p.Files)
	}
	if len(p.Errors) != 1 || p.Errors[0].Filename != "b.jpg" {
		t.Errorf("Errors = %+v, ожидалась ошибка по b.jpg", p.Errors)
	}
	if r.Active() != 1 {
		t.Errorf("Active = %d, ожидался 1", r.Active())
	}

	r.RecordSuccess("b", "c.jpg")
	r.Complete("b")

	p, _ = r.Get("b")
	if p.Status != ProgressCompleted || !p.Finished() {
		t.Errorf("Status = %q, ожидался completed", p.Status)
	}
	if p.CompletedAt == nil {
		t.Error("CompletedAt не заполнен")
	}
	if p.Percent() != 100 {
		t.Errorf("Percent = %d, ожидался 100", p.Percent())
	}
	if r.Active() != 0 {
		t.Errorf("Active = %d, ожидался 0", r.Active())
	}
}

func TestProgressRegistry_Fail(t *testing.T) {
	r := NewProgressRegistry(10, time.Hour)
	_ = r.Start("b", 0)
	r.Fail("b", "слишком много файлов")

	p, _ := r.Get("b")
	if p.Status != ProgressFailed {
		t.Errorf("Status = %q, ожидался failed", p.Status)
	}
	if len(p.Errors) != 1 || p.Errors[0].Message != "слишком много файлов" {
		t.Errorf("Errors = %+v", p.Errors)
	}

	// Для неизвестного пакета Fail ничего не создаёт
	r.Fail("other", "x")
	if _, err := r.Get("other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получена %v", err)
	}
}

// TestProgressRegistry_SnapshotIsCopy — изменения снимка не влияют на реестр.
func TestProgressRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewProgressRegistry(10, time.Hour)
	_ = r.Start("b", 0)
	r.MarkProcessing("b", 2)
	r.RecordSuccess("b", "a.jpg")

	p, _ := r.Get("b")
	p.Files[0] = "changed"
	p.Processed = 99

	again, _ := r.Get("b")
	if again.Files[0] != "a.jpg" || again.Processed != 1 {
		t.Errorf("реестр изменён через снимок: %+v", again)
	}
}

func TestProgressRegistry_MarkProcessingRecreates(t *testing.T) {
	r := NewProgressRegistry(10, time.Hour)
	r.MarkProcessing("evicted", 4)

	p, err := r.Get("evicted")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if p.Status != ProgressProcessing || p.Total != 4 {
		t.Errorf("status=%q total=%d, ожидались processing/4", p.Status, p.Total)
	}
}

func TestProgressRegistry_Capacity(t *testing.T) {
	r := NewProgressRegistry(2, time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		_ = r.Start(id, 0)
		r.Complete(id)
	}

	if r.Len() != 2 {
		t.Errorf("Len = %d, ожидался 2", r.Len())
	}
	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("старейшая запись должна быть вытеснена, получена %v", err)
	}
}

func TestProgressRegistry_CapacityKeepsRunning(t *testing.T) {
	r := NewProgressRegistry(2, time.Hour)
	if err := r.Start("running", 0); err != nil {
		t.Fatalf("Start ошибка: %v", err)
	}
	r.MarkProcessing("running", 3)
	r.RecordSuccess("running", "a.jpg")

	for _, id := range []string{"f1", "f2", "f3", "f4"} {
		_ = r.Start(id, 0)
		r.Complete(id)
	}

	p, err := r.Get("running")
	if err != nil {
		t.Fatalf("незавершённый пакет вытеснен: %v", err)
	}
	if p.Status != ProgressProcessing || p.Processed != 1 {
		t.Errorf("status=%q processed=%d, ожидались processing/1", p.Status, p.Processed)
	}
	if err := r.Start("running", 0); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидался ErrConflict для незавершённого пакета, получен %v", err)
	}
	if r.Active() != 1 {
		t.Errorf("Active = %d, ожидался 1", r.Active())
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, ожидался 3", r.Len())
	}

	r.RecordSuccess("running", "b.jpg")
	r.RecordSuccess("running", "c.jpg")
	r.Complete("running")

	p, err = r.Get("running")
	if err != nil {
		t.Fatalf("Get после завершения: %v", err)
	}
	if p.Status != ProgressCompleted || p.Processed != 3 {
		t.Errorf("status=%q processed=%d, ожидались completed/3", p.Status, p.Processed)
	}
	if r.Active() != 0 {
		t.Errorf("Active = %d, ожидался 0", r.Active())
	}
}

func TestProgressRegistry_Expiry(t *testing.T) {
	r := NewProgressRegistry(10, 50*time.Millisecond)
	_ = r.Start("done", 0)
	r.Complete("done")
	_ = r.Start("running", 0)

	time.Sleep(150 * time.Millisecond)

	if _, err := r.Get("done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("завершённая запись должна истечь, получена %v", err)
	}
	if _, err := r.Get("running"); err != nil {
		t.Errorf("незавершённая запись не должна истекать, получена %v", err)
	}
}
