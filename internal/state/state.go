package state

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manavm/pixstudio/pkg/models"
)

var (
	ErrTooManyCandidates = errors.New("upload staging area is full")
	ErrCandidateNotFound = errors.New("staged image not found")
)

const (
	MinDetailIntensity = 1
	MaxDetailIntensity = 5
)

// Slot identifies one half of the primary-media double buffer. Results
// are written into the inactive slot before the flag flips, so the view
// layer can cross-fade between successive images.
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

// Media is an encoded image held in a display slot.
type Media struct {
	Encoded string
	Kind    string
}

// Candidate is one staged upload for multi-image combine.
type Candidate struct {
	ID       string
	Encoded  string
	MimeType string
	Selected bool
}

type Dimensions struct {
	Width  int
	Height int
}

// Transform is the viewer pan/zoom state. It rides along with the
// creation so restores can reset it, but it is presentation-only and is
// never persisted or snapshotted.
type Transform struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

func identityTransform() Transform {
	return Transform{Scale: 1}
}

// CreationState is the single mutable unit of work: the prompt and
// fine-tune parameters, the displayed media, staged uploads, and
// provenance back to the history ledger.
type CreationState struct {
	Prompt          string
	NegativePrompt  string
	StyleTags       map[string]struct{}
	DetailIntensity int
	AspectRatio     models.AspectRatio

	SlotA      *Media
	SlotB      *Media
	ActiveSlot Slot

	EditSource *models.SourceImage
	VideoURL   string

	ActiveHistoryID string
	Candidates      []Candidate

	SeedInput string
	LastSeed  *int64

	Dimensions *Dimensions
	Transform  Transform
}

func newCreationState() CreationState {
	return CreationState{
		StyleTags:       make(map[string]struct{}),
		DetailIntensity: 3,
		AspectRatio:     models.AspectAuto,
		Transform:       identityTransform(),
	}
}

func (c *CreationState) clone() CreationState {
	out := *c
	out.StyleTags = make(map[string]struct{}, len(c.StyleTags))
	for tag := range c.StyleTags {
		out.StyleTags[tag] = struct{}{}
	}
	if c.SlotA != nil {
		a := *c.SlotA
		out.SlotA = &a
	}
	if c.SlotB != nil {
		b := *c.SlotB
		out.SlotB = &b
	}
	if c.EditSource != nil {
		src := *c.EditSource
		out.EditSource = &src
	}
	if c.LastSeed != nil {
		seed := *c.LastSeed
		out.LastSeed = &seed
	}
	if c.Dimensions != nil {
		d := *c.Dimensions
		out.Dimensions = &d
	}
	out.Candidates = slices.Clone(c.Candidates)
	return out
}

// activeImage returns the media in the active slot, or nil.
func (c *CreationState) activeImage() *Media {
	if c.ActiveSlot == SlotA {
		return c.SlotA
	}
	return c.SlotB
}

// Snapshot is a fully detached copy of CreationState at a point in time.
// Once taken it never aliases live state.
type Snapshot struct {
	state CreationState
}

// Reduced strips the snapshot the same way autosave strips live state,
// for the advisory undo/redo mirrors.
func (sn *Snapshot) Reduced() *ReducedSnapshot {
	c := &sn.state
	tags := make([]string, 0, len(c.StyleTags))
	for tag := range c.StyleTags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	var seed *int64
	if c.LastSeed != nil {
		v := *c.LastSeed
		seed = &v
	}
	return &ReducedSnapshot{
		Prompt:          c.Prompt,
		NegativePrompt:  c.NegativePrompt,
		StyleTags:       tags,
		DetailIntensity: c.DetailIntensity,
		AspectRatio:     string(c.AspectRatio),
		SeedInput:       c.SeedInput,
		LastSeed:        seed,
		ActiveHistoryID: c.ActiveHistoryID,
		HadImage:        c.activeImage() != nil,
		HadVideo:        c.VideoURL != "",
	}
}

// Store owns the live CreationState. All reads and writes go through it;
// there is a single writer context, the mutex only makes the autosave
// ticker's reads safe.
type Store struct {
	mu    sync.Mutex
	state CreationState
}

func NewStore() *Store {
	return &Store{state: newCreationState()}
}

// Capture deep-copies the current state.
func (s *Store) Capture() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{state: s.state.clone()}
}

// Restore replaces every field from the snapshot. The viewer transform is
// always reset to identity, whatever the snapshot held.
func (s *Store) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.state.clone()
	s.state.Transform = identityTransform()
}

// Reset discards the creation and returns to defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newCreationState()
}

func (s *Store) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Prompt
}

func (s *Store) SetPrompt(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Prompt = p
}

func (s *Store) NegativePrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.NegativePrompt
}

func (s *Store) SetNegativePrompt(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.NegativePrompt = p
}

// StyleTags returns the active tags sorted, for stable display and
// prompt assembly.
func (s *Store) StyleTags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.state.StyleTags))
	for tag := range s.state.StyleTags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// ToggleStyleTag adds the tag if absent, removes it if present, and
// reports whether it is now active.
func (s *Store) ToggleStyleTag(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.StyleTags[tag]; ok {
		delete(s.state.StyleTags, tag)
		return false
	}
	s.state.StyleTags[tag] = struct{}{}
	return true
}

func (s *Store) SetStyleTags(tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StyleTags = make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		s.state.StyleTags[tag] = struct{}{}
	}
}

func (s *Store) DetailIntensity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DetailIntensity
}

func (s *Store) SetDetailIntensity(level int) error {
	if level < MinDetailIntensity || level > MaxDetailIntensity {
		return models.ErrInvalidDetail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DetailIntensity = level
	return nil
}

func (s *Store) AspectRatio() models.AspectRatio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AspectRatio
}

func (s *Store) SetAspectRatio(ratio models.AspectRatio) error {
	if !ratio.IsValid() {
		return models.ErrInvalidAspectRatio
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AspectRatio = ratio
	return nil
}

// SetSeedInput coerces the value to digits only; any other runes are
// dropped rather than rejected.
func (s *Store) SetSeedInput(text string) {
	var b strings.Builder
	for _, ch := range text {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SeedInput = b.String()
}

func (s *Store) SeedInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SeedInput
}

func (s *Store) SetLastSeed(seed *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seed == nil {
		s.state.LastSeed = nil
		return
	}
	v := *seed
	s.state.LastSeed = &v
}

func (s *Store) LastSeed() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastSeed == nil {
		return nil
	}
	v := *s.state.LastSeed
	return &v
}

// ActiveImage returns a copy of the media in the active display slot.
func (s *Store) ActiveImage() *Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.state.activeImage()
	if img == nil {
		return nil
	}
	out := *img
	return &out
}

// ApplyImage commits a generated image: the video reference is cleared,
// the image lands in the inactive slot, and only then does the active
// flag flip. The viewer transform resets.
func (s *Store) ApplyImage(encoded, kind string, dims *Dimensions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.VideoURL = ""
	media := &Media{Encoded: encoded, Kind: kind}
	if s.state.ActiveSlot == SlotA {
		s.state.SlotB = media
		s.state.ActiveSlot = SlotB
	} else {
		s.state.SlotA = media
		s.state.ActiveSlot = SlotA
	}
	if dims != nil {
		d := *dims
		s.state.Dimensions = &d
	} else {
		s.state.Dimensions = nil
	}
	s.state.Transform = identityTransform()
}

// ApplyVideo commits a generated video: both image slots and the decoded
// dimensions are cleared so video and image are never displayed together.
func (s *Store) ApplyVideo(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SlotA = nil
	s.state.SlotB = nil
	s.state.Dimensions = nil
	s.state.VideoURL = url
	s.state.Transform = identityTransform()
}

func (s *Store) VideoURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.VideoURL
}

func (s *Store) ImageDimensions() *Dimensions {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Dimensions == nil {
		return nil
	}
	d := *s.state.Dimensions
	return &d
}

// SetEditSource marks the current prompt as an edit of the given image
// rather than a fresh generation.
func (s *Store) SetEditSource(src models.SourceImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copySrc := src
	s.state.EditSource = &copySrc
}

func (s *Store) ClearEditSource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.EditSource = nil
}

func (s *Store) EditSource() *models.SourceImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.EditSource == nil {
		return nil
	}
	src := *s.state.EditSource
	return &src
}

func (s *Store) ActiveHistoryID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveHistoryID
}

func (s *Store) SetActiveHistoryID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveHistoryID = id
}

// AddCandidate stages an upload for combine, capped at
// models.MaxCombineImages. New candidates arrive selected.
func (s *Store) AddCandidate(encoded, mimeType string) (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.Candidates) >= models.MaxCombineImages {
		return Candidate{}, ErrTooManyCandidates
	}
	cand := Candidate{
		ID:       uuid.New().String(),
		Encoded:  encoded,
		MimeType: mimeType,
		Selected: true,
	}
	s.state.Candidates = append(s.state.Candidates, cand)
	return cand, nil
}

func (s *Store) RemoveCandidate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cand := range s.state.Candidates {
		if cand.ID == id {
			s.state.Candidates = slices.Delete(s.state.Candidates, i, i+1)
			return nil
		}
	}
	return ErrCandidateNotFound
}

// ToggleCandidate flips a staged image's selection and reports the new
// value.
func (s *Store) ToggleCandidate(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Candidates {
		if s.state.Candidates[i].ID == id {
			s.state.Candidates[i].Selected = !s.state.Candidates[i].Selected
			return s.state.Candidates[i].Selected, nil
		}
	}
	return false, ErrCandidateNotFound
}

func (s *Store) Candidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Candidates)
}

func (s *Store) ClearCandidates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Candidates = nil
}

func (s *Store) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cand := range s.state.Candidates {
		if cand.Selected {
			n++
		}
	}
	return n
}

// SelectedSources returns the selected candidates in staging order,
// shaped for a combine request.
func (s *Store) SelectedSources() []models.SourceImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SourceImage
	for _, cand := range s.state.Candidates {
		if cand.Selected {
			out = append(out, models.SourceImage{Encoded: cand.Encoded, MimeType: cand.MimeType})
		}
	}
	return out
}

// HasContent reports whether any of prompt, displayed image, or video is
// present. Autosave keys its write/delete decision off this.
func (s *Store) HasContent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Prompt != "" || s.state.activeImage() != nil || s.state.VideoURL != ""
}

func (s *Store) Transform() Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Transform
}

func (s *Store) SetTransform(t Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Transform = t
}

// ReducedSnapshot is a persistence-safe copy of the creation with all
// binary fields stripped. Only small text and parameter fields survive,
// plus flags recording that media existed.
type ReducedSnapshot struct {
	Prompt          string   `json:"prompt,omitempty"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	StyleTags       []string `json:"style_tags,omitempty"`
	DetailIntensity int      `json:"detail_intensity,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	SeedInput       string   `json:"seed_input,omitempty"`
	LastSeed        *int64   `json:"last_seed,omitempty"`
	ActiveHistoryID string   `json:"active_history_id,omitempty"`
	HadImage        bool     `json:"had_image,omitempty"`
	HadVideo        bool     `json:"had_video,omitempty"`
	SavedAt         int64    `json:"saved_at,omitempty"`
}

// Empty reports whether there is nothing worth persisting: no prompt and
// no record of media.
func (r *ReducedSnapshot) Empty() bool {
	return r == nil || (r.Prompt == "" && !r.HadImage && !r.HadVideo)
}

// Reduced builds the persistence-safe snapshot of the current state.
func (s *Store) Reduced() *ReducedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.state.StyleTags))
	for tag := range s.state.StyleTags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	var seed *int64
	if s.state.LastSeed != nil {
		v := *s.state.LastSeed
		seed = &v
	}
	return &ReducedSnapshot{
		Prompt:          s.state.Prompt,
		NegativePrompt:  s.state.NegativePrompt,
		StyleTags:       tags,
		DetailIntensity: s.state.DetailIntensity,
		AspectRatio:     string(s.state.AspectRatio),
		SeedInput:       s.state.SeedInput,
		LastSeed:        seed,
		ActiveHistoryID: s.state.ActiveHistoryID,
		HadImage:        s.state.activeImage() != nil,
		HadVideo:        s.state.VideoURL != "",
		SavedAt:         time.Now().UnixMilli(),
	}
}

// RestoreReduced applies a persisted snapshot: parameters and prompt text
// come back, media fields stay empty because they were never persisted.
func (s *Store) RestoreReduced(r *ReducedSnapshot) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newCreationState()
	s.state.Prompt = r.Prompt
	s.state.NegativePrompt = r.NegativePrompt
	for _, tag := range r.StyleTags {
		s.state.StyleTags[tag] = struct{}{}
	}
	if r.DetailIntensity >= MinDetailIntensity && r.DetailIntensity <= MaxDetailIntensity {
		s.state.DetailIntensity = r.DetailIntensity
	}
	if ratio := models.AspectRatio(r.AspectRatio); ratio.IsValid() {
		s.state.AspectRatio = ratio
	}
	s.state.SeedInput = r.SeedInput
	if r.LastSeed != nil {
		v := *r.LastSeed
		s.state.LastSeed = &v
	}
	s.state.ActiveHistoryID = r.ActiveHistoryID
}
