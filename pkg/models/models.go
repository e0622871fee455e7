package models

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrEmptyPrompt        = errors.New("prompt cannot be empty")
	ErrNoActiveImage      = errors.New("no active image")
	ErrNoSourceImages     = errors.New("combine requires at least 2 selected images")
	ErrTooManySources     = errors.New("combine accepts at most 6 images")
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")
	ErrInvalidViewpoint   = errors.New("invalid viewpoint")
	ErrInvalidDetail      = errors.New("detail intensity must be between 1 and 5")
	ErrInvalidCount       = errors.New("count must be at least 1")
	ErrCountExceedsMax    = errors.New("count exceeds maximum")
	ErrNoMask             = errors.New("inpainting requires a mask")
)

// MaxCombineImages bounds the staging area for multi-image combine.
const MaxCombineImages = 6

// MaxVariations bounds a single variations batch.
const MaxVariations = 8

type GenerationMode string

const (
	ModeTextToImage  GenerationMode = "text-to-image"
	ModeImageToImage GenerationMode = "image-to-image"
	ModeTextToVideo  GenerationMode = "text-to-video"
	ModeImageToVideo GenerationMode = "image-to-video"
)

// OperationMode is the derived routing for the primary action. It is
// recomputed from current data on every invocation, never cached.
type OperationMode string

const (
	OpModeGenerate OperationMode = "generate"
	OpModeEdit     OperationMode = "edit"
	OpModeCombine  OperationMode = "combine"
)

// DeriveOperationMode routes the primary action: combine wins when two or
// more staged images are selected, otherwise an edit-source image means
// edit, otherwise fresh generation.
func DeriveOperationMode(selectedCount int, hasEditSource bool) OperationMode {
	switch {
	case selectedCount >= 2:
		return OpModeCombine
	case hasEditSource:
		return OpModeEdit
	default:
		return OpModeGenerate
	}
}

type AspectRatio string

const (
	AspectAuto      AspectRatio = "auto"
	AspectSquare    AspectRatio = "1:1"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"
	AspectLandscape AspectRatio = "4:3"
	AspectPortrait  AspectRatio = "3:4"
)

func ValidAspectRatios() []AspectRatio {
	return []AspectRatio{AspectAuto, AspectSquare, AspectWide, AspectTall, AspectLandscape, AspectPortrait}
}

func (a AspectRatio) IsValid() bool {
	return slices.Contains(ValidAspectRatios(), a)
}

func (a AspectRatio) String() string {
	return string(a)
}

type UpscaleFactor string

const (
	Upscale2x UpscaleFactor = "2x"
	Upscale4x UpscaleFactor = "4x"
)

func (f UpscaleFactor) IsValid() bool {
	return f == Upscale2x || f == Upscale4x
}

type Viewpoint string

const (
	ViewpointLeft     Viewpoint = "left"
	ViewpointRight    Viewpoint = "right"
	ViewpointAbove    Viewpoint = "above"
	ViewpointBelow    Viewpoint = "below"
	ViewpointCloser   Viewpoint = "closer"
	ViewpointFarther  Viewpoint = "farther"
	ViewpointOpposite Viewpoint = "opposite"
)

func ValidViewpoints() []Viewpoint {
	return []Viewpoint{ViewpointLeft, ViewpointRight, ViewpointAbove, ViewpointBelow, ViewpointCloser, ViewpointFarther, ViewpointOpposite}
}

func (v Viewpoint) IsValid() bool {
	return slices.Contains(ValidViewpoints(), v)
}

// SourceImage is an encoded image plus its mime type, as staged for
// editing or combining.
type SourceImage struct {
	Encoded  string
	MimeType string
}

// GenerateRequest covers fresh text-to-image generation.
type GenerateRequest struct {
	Prompt      string
	Model       string
	AspectRatio AspectRatio
	Seed        *int64
}

func NewGenerateRequest(prompt string) *GenerateRequest {
	return &GenerateRequest{Prompt: prompt, AspectRatio: AspectAuto}
}

func (r *GenerateRequest) Validate() error {
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if r.AspectRatio != "" && !r.AspectRatio.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAspectRatio, r.AspectRatio)
	}
	return nil
}

// EditRequest mutates an existing image under a prompt.
type EditRequest struct {
	Source SourceImage
	Prompt string
	Model  string
	Seed   *int64
}

func (r *EditRequest) Validate() error {
	if r.Source.Encoded == "" {
		return ErrNoActiveImage
	}
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// CombineRequest merges 2-6 source images under an optional prompt.
type CombineRequest struct {
	Sources []SourceImage
	Prompt  string
	Model   string
	Seed    *int64
}

func (r *CombineRequest) Validate() error {
	if len(r.Sources) < 2 {
		return ErrNoSourceImages
	}
	if len(r.Sources) > MaxCombineImages {
		return ErrTooManySources
	}
	return nil
}

type UpscaleRequest struct {
	Source SourceImage
	Factor UpscaleFactor
	Model  string
}

type ReframeRequest struct {
	Source SourceImage
	Target AspectRatio
	Prompt string
	Model  string
	Seed   *int64
}

type InpaintRequest struct {
	Source SourceImage
	Mask   SourceImage
	Prompt string
	Model  string
	Seed   *int64
}

func (r *InpaintRequest) Validate() error {
	if r.Source.Encoded == "" {
		return ErrNoActiveImage
	}
	if r.Mask.Encoded == "" {
		return ErrNoMask
	}
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

type ViewpointRequest struct {
	Source    SourceImage
	Direction Viewpoint
	Model     string
	Seed      *int64
}

// VideoRequest covers both text-to-video and image-to-video; Source is
// optional and discriminates between the two.
type VideoRequest struct {
	Prompt      string
	Source      *SourceImage
	Model       string
	AspectRatio AspectRatio
	Seed        *int64
}

// TokenUsage is the backend's reported token consumption for one call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// MediaResponse is a successful image-producing call: one or more encoded
// images, the seed the backend actually used (authoritative, may differ
// from the requested seed), and token usage.
type MediaResponse struct {
	Images []string
	Seed   *int64
	Usage  TokenUsage
}

// VideoResponse is a successful video-producing call. URL references a
// hosted asset rather than inline data.
type VideoResponse struct {
	URL   string
	Seed  *int64
	Usage TokenUsage
}
