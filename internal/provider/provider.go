// Package provider defines the contract with the hosted generation
// backend. The core treats it as a black box: fully assembled prompts and
// source images go in, media references and an authoritative seed come
// out, and failures arrive pre-classified as the typed variants in
// pkg/models.
package provider

import (
	"context"
	"errors"

	"github.com/manavm/pixstudio/pkg/models"
)

var (
	ErrAPIKeyRequired = errors.New("API key is required")
	ErrNoMedia        = errors.New("backend returned no media")
)

// ProgressFunc receives coarse human-readable status updates while a
// long-running video job is polled.
type ProgressFunc func(status string)

// GenerationService is the full backend surface the coordinator drives.
// Every call is synchronous from the caller's point of view and honors
// context cancellation.
type GenerationService interface {
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.MediaResponse, error)
	Edit(ctx context.Context, req *models.EditRequest) (*models.MediaResponse, error)
	Combine(ctx context.Context, req *models.CombineRequest) (*models.MediaResponse, error)
	Upscale(ctx context.Context, req *models.UpscaleRequest) (*models.MediaResponse, error)
	Reframe(ctx context.Context, req *models.ReframeRequest) (*models.MediaResponse, error)
	Inpaint(ctx context.Context, req *models.InpaintRequest) (*models.MediaResponse, error)
	ChangeViewpoint(ctx context.Context, req *models.ViewpointRequest) (*models.MediaResponse, error)
	GenerateVideo(ctx context.Context, req *models.VideoRequest, progress ProgressFunc) (*models.VideoResponse, error)

	// Text-only calls. These never produce media and the coordinator
	// runs them without checkpointing.
	SurprisePrompt(ctx context.Context) (string, error)
	AnalyzeScene(ctx context.Context, image models.SourceImage) (string, error)
	SuggestNegativePrompt(ctx context.Context, prompt string) (string, error)
	AnalyzeStyle(ctx context.Context, image models.SourceImage) (string, error)
}

// Config carries backend connection settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	VideoModel string
	TimeoutSec int
}
