// Package history holds the bounded, ordered collection of completed
// generations. When the ledger is full it refuses new records instead of
// evicting old ones; the user must delete or clear before generating
// again.
package history

import (
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/manavm/pixstudio/pkg/models"
)

// MaxItems is the ledger capacity.
const MaxItems = 10

var ErrCapacityExceeded = errors.New("history is full: delete or clear entries before generating")

// ImageRecord is one image inside a history record. Upscale rewrites
// these in place; nothing else mutates a committed record.
type ImageRecord struct {
	Src        string
	UpscaledTo models.UpscaleFactor
	IsRefined  bool
}

type Settings struct {
	Model       string
	AspectRatio models.AspectRatio
}

// FineTuneSnapshot freezes the fine-tune parameters a record was
// generated with.
type FineTuneSnapshot struct {
	NegativePrompt  string
	StyleTags       []string
	DetailIntensity int
	AspectRatio     models.AspectRatio
}

// Record is one committed generation.
type Record struct {
	ID        string
	Prompt    string
	Settings  Settings
	Mode      models.GenerationMode
	Images    []ImageRecord
	Timestamp int64
	VideoSrc  string
	Seed      *int64
	FineTune  *FineTuneSnapshot
}

func (r *Record) clone() *Record {
	out := *r
	out.Images = slices.Clone(r.Images)
	if r.Seed != nil {
		seed := *r.Seed
		out.Seed = &seed
	}
	if r.FineTune != nil {
		ft := *r.FineTune
		ft.StyleTags = slices.Clone(r.FineTune.StyleTags)
		out.FineTune = &ft
	}
	return &out
}

// Ledger is the bounded record list, most recent appended last.
type Ledger struct {
	mu      sync.Mutex
	records []*Record
	lastID  int64
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// NewRecordID derives an ID from the current time, bumped past the last
// issued ID so bursts within one millisecond stay unique and ordered.
func (l *Ledger) NewRecordID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := time.Now().UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return strconv.FormatInt(id, 10)
}

func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// IsFull is the precondition gate checked before any generation starts.
func (l *Ledger) IsFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records) >= MaxItems
}

// Append commits a record, failing with ErrCapacityExceeded at capacity.
// The caller surfaces that as a blocking warning; the result is never
// silently dropped.
func (l *Ledger) Append(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) >= MaxItems {
		return ErrCapacityExceeded
	}
	l.records = append(l.records, rec.clone())
	return nil
}

// UpdateImages replaces a record's image list in place, for upscale
// results. An unknown id is a silent no-op.
func (l *Ledger) UpdateImages(id string, images []ImageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.ID == id {
			rec.Images = slices.Clone(images)
			return
		}
	}
}

// Get returns a detached copy of the record with the given id.
func (l *Ledger) Get(id string) (*Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.ID == id {
			return rec.clone(), true
		}
	}
	return nil, false
}

// Records returns detached copies in commit order.
func (l *Ledger) Records() []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Record, len(l.records))
	for i, rec := range l.records {
		out[i] = rec.clone()
	}
	return out
}

// Delete removes every record whose id is in ids.
func (l *Ledger) Delete(ids map[string]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = slices.DeleteFunc(l.records, func(rec *Record) bool {
		_, ok := ids[rec.ID]
		return ok
	})
}

// Clear removes everything.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
