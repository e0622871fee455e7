// Package coordinator sequences the mutually-exclusive generation
// operations against the session state store, the undo controller and
// the history ledger. Every operation runs the same protocol:
// preconditions, checkpoint, busy-flag, service call, commit or
// classified failure, busy-flag clear.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/manavm/pixstudio/internal/history"
	"github.com/manavm/pixstudio/internal/provider"
	"github.com/manavm/pixstudio/internal/state"
	"github.com/manavm/pixstudio/internal/undo"
	"github.com/manavm/pixstudio/internal/usage"
	"github.com/manavm/pixstudio/pkg/models"
)

// ErrBusy rejects a second operation while one is in flight. There is no
// queue: the trigger is simply refused.
var ErrBusy = errors.New("another operation is in progress")

var ErrRecordNotFound = errors.New("history record not found")

// Operation names the generation-style operations whose in-flight flags
// combine into the busy gate.
type Operation string

const (
	OpGenerate   Operation = "generate"
	OpVideo      Operation = "video"
	OpCombine    Operation = "combine"
	OpUpscale    Operation = "upscale"
	OpReframe    Operation = "reframe"
	OpVariations Operation = "variations"
	OpViewpoint  Operation = "viewpoint"
	OpInpaint    Operation = "inpaint"
	OpSurprise   Operation = "surprise"
	OpAnalysis   Operation = "analysis"
)

type BannerKind string

const (
	BannerError   BannerKind = "error"
	BannerRefusal BannerKind = "refusal"
)

// Banner is the single error-or-refusal message surfaced to the user.
// At most one exists at a time; starting a new operation clears it.
type Banner struct {
	Kind BannerKind
	Text string
}

type Config struct {
	State   *state.Store
	Undo    *undo.Controller
	Ledger  *history.Ledger
	Service provider.GenerationService
	Usage   *usage.Recorder
	Model   string
}

type Coordinator struct {
	mu     sync.Mutex
	state  *state.Store
	undo   *undo.Controller
	ledger *history.Ledger
	svc    provider.GenerationService
	usage  *usage.Recorder
	model  string

	busy   map[Operation]bool
	banner *Banner
	tokens models.TokenUsage
}

func New(cfg Config) *Coordinator {
	return &Coordinator{
		state:  cfg.State,
		undo:   cfg.Undo,
		ledger: cfg.Ledger,
		svc:    cfg.Service,
		usage:  cfg.Usage,
		model:  cfg.Model,
		busy:   make(map[Operation]bool),
	}
}

// IsBusy is the OR across all per-operation in-flight flags.
func (c *Coordinator) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.busy) > 0
}

// Busy reports a single operation's in-flight flag.
func (c *Coordinator) Busy(op Operation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[op]
}

// Banner returns the current banner, or nil.
func (c *Coordinator) Banner() *Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.banner == nil {
		return nil
	}
	b := *c.banner
	return &b
}

func (c *Coordinator) DismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = nil
}

// SessionTokens returns the tokens consumed this session.
func (c *Coordinator) SessionTokens() models.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// run executes the shared operation protocol. precheck runs before the
// checkpoint and aborts without any state change; gateHistory applies
// the ledger-capacity precondition; checkpoint is skipped only for
// pure-analysis operations. The busy flag is cleared whatever invoke
// returns.
func (c *Coordinator) run(ctx context.Context, op Operation, checkpoint, gateHistory bool, precheck func() error, invoke func(ctx context.Context) error) error {
	c.mu.Lock()
	if len(c.busy) > 0 {
		c.mu.Unlock()
		return ErrBusy
	}
	if precheck != nil {
		if err := precheck(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if gateHistory && c.ledger.IsFull() {
		c.mu.Unlock()
		return history.ErrCapacityExceeded
	}
	c.banner = nil
	if checkpoint {
		c.undo.RecordCheckpoint()
	}
	c.busy[op] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.busy, op)
		c.mu.Unlock()
	}()

	if err := invoke(ctx); err != nil {
		c.recordFailure(err)
		return err
	}
	return nil
}

// recordFailure classifies a backend error into either a refusal banner
// or an error banner, never both. Checkpointed state is untouched.
func (c *Coordinator) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if refusal, ok := models.AsRefusal(err); ok {
		c.banner = &Banner{Kind: BannerRefusal, Text: refusal.Explanation}
		return
	}
	var text string
	switch models.Classify(err) {
	case models.FailureQuota:
		text = "Quota or rate limit exceeded. Wait a little before retrying."
	case models.FailureTransient:
		text = "The generation service is unreachable. Check your connection and retry."
	case models.FailureDecode:
		text = "The generated image could not be decoded."
	default:
		text = fmt.Sprintf("Generation failed: %v", err)
	}
	c.banner = &Banner{Kind: BannerError, Text: text}
}

func (c *Coordinator) setBanner(kind BannerKind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = &Banner{Kind: kind, Text: text}
}

// seedParam parses the user's digits-only seed text, nil when empty or
// out of range.
func (c *Coordinator) seedParam() *int64 {
	text := c.state.SeedInput()
	if text == "" {
		return nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// commit appends a committed generation to the ledger, points the
// creation at it, adopts the authoritative seed, and counts tokens.
func (c *Coordinator) commit(ctx context.Context, op Operation, mode models.GenerationMode, prompt string, images []string, videoSrc string, seed *int64, used models.TokenUsage) (*history.Record, error) {
	rec := &history.Record{
		ID:     c.ledger.NewRecordID(),
		Prompt: prompt,
		Settings: history.Settings{
			Model:       c.model,
			AspectRatio: c.state.AspectRatio(),
		},
		Mode:      mode,
		Timestamp: timestampNow(),
		VideoSrc:  videoSrc,
		Seed:      seed,
		FineTune: &history.FineTuneSnapshot{
			NegativePrompt:  c.state.NegativePrompt(),
			StyleTags:       c.state.StyleTags(),
			DetailIntensity: c.state.DetailIntensity(),
			AspectRatio:     c.state.AspectRatio(),
		},
	}
	for _, src := range images {
		rec.Images = append(rec.Images, history.ImageRecord{Src: src})
	}

	if err := c.ledger.Append(rec); err != nil {
		return nil, err
	}

	c.state.SetActiveHistoryID(rec.ID)
	c.state.SetLastSeed(seed)

	c.mu.Lock()
	c.tokens.InputTokens += used.InputTokens
	c.tokens.OutputTokens += used.OutputTokens
	c.mu.Unlock()

	if c.usage != nil {
		mediaCount := len(images)
		if videoSrc != "" {
			mediaCount = 1
		}
		_ = c.usage.Record(ctx, &usage.Entry{
			Operation:  string(op),
			Model:      c.model,
			Usage:      used,
			MediaCount: mediaCount,
		})
	}
	return rec, nil
}

// applyImageResult puts a generated image on screen: video cleared,
// image written to the inactive slot, dimensions probed. A dimension
// decode failure degrades metadata and raises an error banner but does
// not undo the commit.
func (c *Coordinator) applyImageResult(encoded string) {
	var dims *state.Dimensions
	if w, h, err := probeDimensions(encoded); err != nil {
		c.setBanner(BannerError, "The image was generated but its dimensions could not be read.")
	} else {
		dims = &state.Dimensions{Width: w, Height: h}
	}
	c.state.ApplyImage(encoded, "image/png", dims)
}
