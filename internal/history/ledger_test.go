package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manavm/pixstudio/pkg/models"
)

func TestLedger_AppendUpToCapacity(t *testing.T) {
	l := NewLedger()

	for i := 0; i < MaxItems; i++ {
		rec := &Record{ID: l.NewRecordID(), Prompt: fmt.Sprintf("prompt-%d", i)}
		if err := l.Append(rec); err != nil {
			t.Fatalf("Append() error = %v at %d", err, i)
		}
	}

	if !l.IsFull() {
		t.Error("IsFull() = false at capacity")
	}
	if err := l.Append(&Record{ID: l.NewRecordID()}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Append() over capacity error = %v, want %v", err, ErrCapacityExceeded)
	}
	if got := l.Size(); got != MaxItems {
		t.Errorf("Size() = %d, want %d", got, MaxItems)
	}
}

func TestLedger_NewRecordID_UniqueAndOrdered(t *testing.T) {
	l := NewLedger()
	prev := ""
	for i := 0; i < 50; i++ {
		id := l.NewRecordID()
		if id <= prev && prev != "" && len(id) == len(prev) {
			t.Fatalf("NewRecordID() = %q not greater than previous %q", id, prev)
		}
		if id == prev {
			t.Fatalf("NewRecordID() repeated %q", id)
		}
		prev = id
	}
}

func TestLedger_RecordsAreDetached(t *testing.T) {
	l := NewLedger()
	rec := &Record{
		ID:     l.NewRecordID(),
		Prompt: "a fox",
		Images: []ImageRecord{{Src: "aW1n"}},
	}
	if err := l.Append(rec); err != nil {
		t.Fatal(err)
	}

	// Mutating the returned copy must not touch the stored record.
	got := l.Records()
	got[0].Prompt = "changed"
	got[0].Images[0].Src = "changed"

	stored, ok := l.Get(rec.ID)
	if !ok {
		t.Fatal("Get() did not find the record")
	}
	if stored.Prompt != "a fox" || stored.Images[0].Src != "aW1n" {
		t.Errorf("stored record mutated through returned copy: %+v", stored)
	}
}

func TestLedger_UpdateImages(t *testing.T) {
	l := NewLedger()
	id := l.NewRecordID()
	if err := l.Append(&Record{ID: id, Images: []ImageRecord{{Src: "orig"}}}); err != nil {
		t.Fatal(err)
	}

	l.UpdateImages(id, []ImageRecord{{Src: "upscaled", UpscaledTo: models.Upscale2x, IsRefined: true}})

	rec, _ := l.Get(id)
	if rec.Images[0].Src != "upscaled" || rec.Images[0].UpscaledTo != models.Upscale2x || !rec.Images[0].IsRefined {
		t.Errorf("UpdateImages() not applied: %+v", rec.Images[0])
	}
	if got := l.Size(); got != 1 {
		t.Errorf("Size() = %d after in-place update, want 1", got)
	}
}

func TestLedger_UpdateImages_UnknownID(t *testing.T) {
	l := NewLedger()
	if err := l.Append(&Record{ID: "1"}); err != nil {
		t.Fatal(err)
	}

	// Silent no-op.
	l.UpdateImages("missing", []ImageRecord{{Src: "x"}})

	rec, _ := l.Get("1")
	if len(rec.Images) != 0 {
		t.Errorf("unknown id update changed an existing record: %+v", rec)
	}
}

func TestLedger_Delete(t *testing.T) {
	l := NewLedger()
	var ids []string
	for i := 0; i < 4; i++ {
		id := l.NewRecordID()
		ids = append(ids, id)
		if err := l.Append(&Record{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	l.Delete(map[string]struct{}{ids[0]: {}, ids[2]: {}})

	if got := l.Size(); got != 2 {
		t.Fatalf("Size() after delete = %d, want 2", got)
	}
	remaining := l.Records()
	if remaining[0].ID != ids[1] || remaining[1].ID != ids[3] {
		t.Error("Delete() should preserve the order of surviving records")
	}
}

func TestLedger_DeleteFreesCapacity(t *testing.T) {
	l := NewLedger()
	var first string
	for i := 0; i < MaxItems; i++ {
		id := l.NewRecordID()
		if i == 0 {
			first = id
		}
		if err := l.Append(&Record{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	l.Delete(map[string]struct{}{first: {}})

	if l.IsFull() {
		t.Error("IsFull() = true after delete")
	}
	if err := l.Append(&Record{ID: l.NewRecordID()}); err != nil {
		t.Errorf("Append() after delete error = %v", err)
	}
}

func TestLedger_Clear(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 3; i++ {
		if err := l.Append(&Record{ID: l.NewRecordID()}); err != nil {
			t.Fatal(err)
		}
	}

	l.Clear()

	if got := l.Size(); got != 0 {
		t.Errorf("Size() after clear = %d, want 0", got)
	}
}

func TestRecord_CloneDeepCopiesFineTune(t *testing.T) {
	seed := int64(7)
	rec := &Record{
		ID:   "1",
		Seed: &seed,
		FineTune: &FineTuneSnapshot{
			StyleTags:       []string{"noir"},
			DetailIntensity: 4,
		},
	}

	got := rec.clone()
	got.FineTune.StyleTags[0] = "changed"
	*got.Seed = 99

	if rec.FineTune.StyleTags[0] != "noir" {
		t.Error("clone shares the style tag slice")
	}
	if *rec.Seed != 7 {
		t.Error("clone shares the seed pointer")
	}
}
