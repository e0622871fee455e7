package state

import (
	"errors"
	"testing"

	"github.com/manavm/pixstudio/pkg/models"
)

func TestCaptureRestore_DeepCopy(t *testing.T) {
	s := NewStore()
	s.SetPrompt("a lighthouse at dusk")
	s.ToggleStyleTag("oil painting")
	s.ApplyImage("aW1n", "image/png", &Dimensions{Width: 1024, Height: 768})

	snap := s.Capture()

	// Mutations after capture must not leak into the snapshot.
	s.SetPrompt("something else")
	s.ToggleStyleTag("oil painting")
	s.ToggleStyleTag("sketch")
	s.ApplyImage("bmV3", "image/png", nil)

	s.Restore(snap)

	if got := s.Prompt(); got != "a lighthouse at dusk" {
		t.Errorf("Prompt() after restore = %q, want %q", got, "a lighthouse at dusk")
	}
	tags := s.StyleTags()
	if len(tags) != 1 || tags[0] != "oil painting" {
		t.Errorf("StyleTags() after restore = %v, want [oil painting]", tags)
	}
	img := s.ActiveImage()
	if img == nil || img.Encoded != "aW1n" {
		t.Errorf("ActiveImage() after restore = %+v, want encoded aW1n", img)
	}
	dims := s.ImageDimensions()
	if dims == nil || dims.Width != 1024 || dims.Height != 768 {
		t.Errorf("ImageDimensions() after restore = %+v, want 1024x768", dims)
	}
}

func TestRestore_ResetsTransform(t *testing.T) {
	s := NewStore()
	snap := s.Capture()

	s.SetTransform(Transform{Scale: 2.5, OffsetX: 40, OffsetY: -10})
	s.Restore(snap)

	if got := s.Transform(); got != identityTransform() {
		t.Errorf("Transform() after restore = %+v, want identity", got)
	}
}

func TestApplyImage_DoubleBuffer(t *testing.T) {
	s := NewStore()

	s.ApplyImage("first", "image/png", nil)
	if img := s.ActiveImage(); img == nil || img.Encoded != "first" {
		t.Fatalf("ActiveImage() = %+v, want first", img)
	}

	// Second apply must land in the other slot and flip the flag, and the
	// previous image must still be readable from the snapshot taken
	// before.
	s.ApplyImage("second", "image/png", nil)
	if img := s.ActiveImage(); img == nil || img.Encoded != "second" {
		t.Errorf("ActiveImage() = %+v, want second", img)
	}

	snap := s.Capture()
	if snap.state.SlotA == nil || snap.state.SlotB == nil {
		t.Error("both slots should be populated after two applies")
	}
	if snap.state.SlotA.Encoded == snap.state.SlotB.Encoded {
		t.Error("slots should hold different images")
	}
}

func TestApplyImage_ClearsVideo(t *testing.T) {
	s := NewStore()
	s.ApplyVideo("https://example.com/clip.mp4")

	s.ApplyImage("aW1n", "image/png", nil)

	if got := s.VideoURL(); got != "" {
		t.Errorf("VideoURL() after ApplyImage = %q, want empty", got)
	}
	if s.ActiveImage() == nil {
		t.Error("ActiveImage() = nil after ApplyImage")
	}
}

func TestApplyVideo_ClearsImages(t *testing.T) {
	s := NewStore()
	s.ApplyImage("one", "image/png", &Dimensions{Width: 512, Height: 512})
	s.ApplyImage("two", "image/png", &Dimensions{Width: 512, Height: 512})

	s.ApplyVideo("https://example.com/clip.mp4")

	if s.ActiveImage() != nil {
		t.Error("ActiveImage() should be nil after ApplyVideo")
	}
	if s.ImageDimensions() != nil {
		t.Error("ImageDimensions() should be nil after ApplyVideo")
	}
	if got := s.VideoURL(); got != "https://example.com/clip.mp4" {
		t.Errorf("VideoURL() = %q", got)
	}
}

func TestSetSeedInput_CoercesToDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345", "12345"},
		{"12a45", "1245"},
		{"seed: 99", "99"},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := NewStore()
			s.SetSeedInput(tt.in)
			if got := s.SeedInput(); got != tt.want {
				t.Errorf("SeedInput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetDetailIntensity_Bounds(t *testing.T) {
	s := NewStore()

	if err := s.SetDetailIntensity(5); err != nil {
		t.Errorf("SetDetailIntensity(5) error = %v", err)
	}
	if err := s.SetDetailIntensity(0); !errors.Is(err, models.ErrInvalidDetail) {
		t.Errorf("SetDetailIntensity(0) error = %v, want %v", err, models.ErrInvalidDetail)
	}
	if err := s.SetDetailIntensity(6); !errors.Is(err, models.ErrInvalidDetail) {
		t.Errorf("SetDetailIntensity(6) error = %v, want %v", err, models.ErrInvalidDetail)
	}
	if got := s.DetailIntensity(); got != 5 {
		t.Errorf("DetailIntensity() = %d, want 5 (rejected values must not apply)", got)
	}
}

func TestAddCandidate_CapAndSelection(t *testing.T) {
	s := NewStore()

	for i := 0; i < models.MaxCombineImages; i++ {
		cand, err := s.AddCandidate("aW1n", "image/png")
		if err != nil {
			t.Fatalf("AddCandidate() error = %v at %d", err, i)
		}
		if !cand.Selected {
			t.Error("new candidates should arrive selected")
		}
	}

	if _, err := s.AddCandidate("aW1n", "image/png"); !errors.Is(err, ErrTooManyCandidates) {
		t.Errorf("AddCandidate() over cap error = %v, want %v", err, ErrTooManyCandidates)
	}
	if got := s.SelectedCount(); got != models.MaxCombineImages {
		t.Errorf("SelectedCount() = %d, want %d", got, models.MaxCombineImages)
	}
}

func TestToggleCandidate(t *testing.T) {
	s := NewStore()
	cand, err := s.AddCandidate("aW1n", "image/png")
	if err != nil {
		t.Fatal(err)
	}

	selected, err := s.ToggleCandidate(cand.ID)
	if err != nil || selected {
		t.Errorf("ToggleCandidate() = %v, %v, want false, nil", selected, err)
	}
	if got := s.SelectedCount(); got != 0 {
		t.Errorf("SelectedCount() = %d, want 0", got)
	}

	if _, err := s.ToggleCandidate("missing"); !errors.Is(err, ErrCandidateNotFound) {
		t.Errorf("ToggleCandidate(missing) error = %v, want %v", err, ErrCandidateNotFound)
	}
}

func TestSelectedSources_PreservesOrder(t *testing.T) {
	s := NewStore()
	first, _ := s.AddCandidate("Zmlyc3Q=", "image/png")
	s.AddCandidate("c2Vjb25k", "image/jpeg")
	third, _ := s.AddCandidate("dGhpcmQ=", "image/png")
	_ = first
	_ = third

	srcs := s.SelectedSources()
	if len(srcs) != 3 {
		t.Fatalf("SelectedSources() len = %d, want 3", len(srcs))
	}
	if srcs[0].Encoded != "Zmlyc3Q=" || srcs[2].Encoded != "dGhpcmQ=" {
		t.Error("SelectedSources() should preserve staging order")
	}
}

func TestHasContent(t *testing.T) {
	s := NewStore()
	if s.HasContent() {
		t.Error("fresh store should have no content")
	}

	s.SetPrompt("hello")
	if !s.HasContent() {
		t.Error("prompt alone is content")
	}

	s.Reset()
	s.ApplyVideo("https://example.com/v.mp4")
	if !s.HasContent() {
		t.Error("video alone is content")
	}
}

func TestReducedSnapshot_StripsBinary(t *testing.T) {
	s := NewStore()
	s.SetPrompt("a fox")
	s.SetNegativePrompt("blurry")
	s.ToggleStyleTag("noir")
	s.SetSeedInput("42")
	s.ApplyImage("aW1n", "image/png", &Dimensions{Width: 100, Height: 100})

	r := s.Reduced()

	if r.Prompt != "a fox" || r.NegativePrompt != "blurry" {
		t.Errorf("Reduced() prompt fields = %q / %q", r.Prompt, r.NegativePrompt)
	}
	if !r.HadImage {
		t.Error("HadImage should be true")
	}
	if r.HadVideo {
		t.Error("HadVideo should be false")
	}
	if r.SavedAt == 0 {
		t.Error("SavedAt should be stamped")
	}
}

func TestRestoreReduced(t *testing.T) {
	s := NewStore()
	seed := int64(7)
	s.RestoreReduced(&ReducedSnapshot{
		Prompt:          "a fox",
		StyleTags:       []string{"noir"},
		DetailIntensity: 4,
		AspectRatio:     "16:9",
		SeedInput:       "42",
		LastSeed:        &seed,
		HadImage:        true,
	})

	if got := s.Prompt(); got != "a fox" {
		t.Errorf("Prompt() = %q", got)
	}
	if got := s.AspectRatio(); got != models.AspectWide {
		t.Errorf("AspectRatio() = %v, want 16:9", got)
	}
	if got := s.DetailIntensity(); got != 4 {
		t.Errorf("DetailIntensity() = %d, want 4", got)
	}
	// Media never survives persistence.
	if s.ActiveImage() != nil {
		t.Error("ActiveImage() should be nil after restoring a reduced snapshot")
	}
	if got := s.LastSeed(); got == nil || *got != 7 {
		t.Errorf("LastSeed() = %v, want 7", got)
	}
}

func TestRestoreReduced_IgnoresInvalidFields(t *testing.T) {
	s := NewStore()
	s.RestoreReduced(&ReducedSnapshot{
		Prompt:          "x",
		DetailIntensity: 99,
		AspectRatio:     "21:9",
	})

	if got := s.DetailIntensity(); got != 3 {
		t.Errorf("DetailIntensity() = %d, want default 3", got)
	}
	if got := s.AspectRatio(); got != models.AspectAuto {
		t.Errorf("AspectRatio() = %v, want auto", got)
	}
}

func TestReducedSnapshot_Empty(t *testing.T) {
	var nilSnap *ReducedSnapshot
	if !nilSnap.Empty() {
		t.Error("nil snapshot should be empty")
	}
	if !(&ReducedSnapshot{SeedInput: "42"}).Empty() {
		t.Error("snapshot with only parameters should be empty")
	}
	if (&ReducedSnapshot{Prompt: "x"}).Empty() {
		t.Error("snapshot with a prompt is not empty")
	}
	if (&ReducedSnapshot{HadVideo: true}).Empty() {
		t.Error("snapshot recording a video is not empty")
	}
}
