package domain

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jobchain/integrity/internal/storage"
)

func TestLabelsFixedOrder(t *testing.T) {
	t.Parallel()

	got := Labels()
	want := []string{"A", "B", "C", "D", "E"}
	if len(got) != len(want) {
		t.Fatalf("label count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("label[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeVacancyID(t *testing.T) {
	t.Parallel()

	if _, err := NormalizeVacancyID("   "); err != ErrEmptyVacancyID {
		t.Fatalf("error = %v, want %v", err, ErrEmptyVacancyID)
	}
	got, err := NormalizeVacancyID("  vac-1 ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "vac-1" {
		t.Fatalf("normalized = %q, want %q", got, "vac-1")
	}
}

func TestLockSkipsAlreadyLockedSet(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	set := storage.PaperSet{ID: "ps-1", VacancyID: "vac-1", SetID: "A"}

	locked, changed := Lock(set, "C1", now)
	if !changed {
		t.Fatal("expected first lock to change the set")
	}
	if !locked.Locked || locked.CenterID != "C1" {
		t.Fatalf("locked set = %+v, want locked for C1", locked)
	}

	relocked, changed := Lock(locked, "C2", now.Add(time.Hour))
	if changed {
		t.Fatal("locking a locked set must be a skip")
	}
	if relocked.CenterID != "C1" {
		t.Fatalf("center = %q, want original %q", relocked.CenterID, "C1")
	}
	if !relocked.UpdatedAt.Equal(locked.UpdatedAt) {
		t.Fatal("skip must not refresh the timestamp")
	}
}

func TestUnlockKeepsCenterBinding(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	set := storage.PaperSet{ID: "ps-1", Locked: true, CenterID: "C1"}

	unlocked, changed := Unlock(set, now)
	if !changed {
		t.Fatal("expected unlock to change a locked set")
	}
	if unlocked.Locked {
		t.Fatal("set must be unlocked")
	}
	if unlocked.CenterID != "C1" {
		t.Fatalf("center = %q, want audit history %q kept", unlocked.CenterID, "C1")
	}

	if _, changed := Unlock(unlocked, now.Add(time.Hour)); changed {
		t.Fatal("unlocking an unlocked set must be a no-op")
	}
}

func TestAllLocked(t *testing.T) {
	t.Parallel()

	if AllLocked(nil) {
		t.Fatal("empty collection must not count as locked")
	}
	sets := []storage.PaperSet{{Locked: true}, {Locked: false}}
	if AllLocked(sets) {
		t.Fatal("mixed collection must not count as locked")
	}
	sets[1].Locked = true
	if !AllLocked(sets) {
		t.Fatal("fully locked collection must count as locked")
	}
}

func TestPlaceholderSourceDeterministic(t *testing.T) {
	t.Parallel()

	source := PlaceholderSource{}
	first, err := source.Compose(context.Background(), "vac-1", "B")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	second, err := source.Compose(context.Background(), "vac-1", "B")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("composition must be deterministic per (vacancy, set)")
	}
}

func TestPlaceholderSourceVariesByLabel(t *testing.T) {
	t.Parallel()

	source := PlaceholderSource{Questions: 10}
	a, err := source.Compose(context.Background(), "vac-1", "A")
	if err != nil {
		t.Fatalf("compose A: %v", err)
	}
	b, err := source.Compose(context.Background(), "vac-1", "B")
	if err != nil {
		t.Fatalf("compose B: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("variants must differ between labels")
	}
}

func TestPlaceholderSourceRejectsUnknownLabel(t *testing.T) {
	t.Parallel()

	if _, err := (PlaceholderSource{}).Compose(context.Background(), "vac-1", "F"); err != ErrUnknownLabel {
		t.Fatalf("error = %v, want %v", err, ErrUnknownLabel)
	}
}
