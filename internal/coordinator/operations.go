package coordinator

import (
	"context"
	"sync/atomic"

	"github.com/manavm/pixstudio/internal/history"
	"github.com/manavm/pixstudio/pkg/models"
)

// GenerateOrEdit is the primary action. Its routing is derived from
// current data on every invocation: combine when 2+ staged images are
// selected, edit when an edit-source image is set, fresh generation
// otherwise.
func (c *Coordinator) GenerateOrEdit(ctx context.Context) error {
	mode := models.DeriveOperationMode(c.state.SelectedCount(), c.state.EditSource() != nil)

	switch mode {
	case models.OpModeCombine:
		return c.Combine(ctx)
	case models.OpModeEdit:
		return c.run(ctx, OpGenerate, true, true,
			func() error {
				if c.state.Prompt() == "" {
					return models.ErrEmptyPrompt
				}
				return nil
			},
			func(ctx context.Context) error {
				src := c.state.EditSource()
				resp, err := c.svc.Edit(ctx, &models.EditRequest{
					Source: *src,
					Prompt: c.assemblePrompt(c.state.Prompt()),
					Model:  c.model,
					Seed:   c.seedParam(),
				})
				if err != nil {
					return err
				}
				return c.commitImages(ctx, OpGenerate, models.ModeImageToImage, resp)
			})
	default:
		return c.run(ctx, OpGenerate, true, true,
			func() error {
				if c.state.Prompt() == "" {
					return models.ErrEmptyPrompt
				}
				return nil
			},
			func(ctx context.Context) error {
				resp, err := c.svc.Generate(ctx, &models.GenerateRequest{
					Prompt:      c.assemblePrompt(c.state.Prompt()),
					Model:       c.model,
					AspectRatio: c.state.AspectRatio(),
					Seed:        c.seedParam(),
				})
				if err != nil {
					return err
				}
				return c.commitImages(ctx, OpGenerate, models.ModeTextToImage, resp)
			})
	}
}

// Combine merges the selected staged images into one result.
func (c *Coordinator) Combine(ctx context.Context) error {
	return c.run(ctx, OpCombine, true, true,
		func() error {
			n := c.state.SelectedCount()
			if n < 2 {
				return models.ErrNoSourceImages
			}
			if n > models.MaxCombineImages {
				return models.ErrTooManySources
			}
			return nil
		},
		func(ctx context.Context) error {
			resp, err := c.svc.Combine(ctx, &models.CombineRequest{
				Sources: c.state.SelectedSources(),
				Prompt:  c.assemblePrompt(c.state.Prompt()),
				Model:   c.model,
				Seed:    c.seedParam(),
			})
			if err != nil {
				return err
			}
			return c.commitImages(ctx, OpCombine, models.ModeImageToImage, resp)
		})
}

// GenerateVideo animates the prompt, or the active image when present.
// Progress strings arrive at a coarse interval while the job renders.
// The job is not cancellable; no cancel affordance exists for it.
func (c *Coordinator) GenerateVideo(ctx context.Context, progress func(string)) error {
	return c.run(ctx, OpVideo, true, true,
		func() error {
			if c.state.Prompt() == "" && c.state.ActiveImage() == nil {
				return models.ErrEmptyPrompt
			}
			return nil
		},
		func(ctx context.Context) error {
			req := &models.VideoRequest{
				Prompt:      c.assemblePrompt(c.state.Prompt()),
				AspectRatio: c.state.AspectRatio(),
				Seed:        c.seedParam(),
			}
			mode := models.ModeTextToVideo
			if img := c.state.ActiveImage(); img != nil {
				req.Source = &models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind}
				mode = models.ModeImageToVideo
			}

			resp, err := c.svc.GenerateVideo(ctx, req, progress)
			if err != nil {
				return err
			}

			if _, err := c.commit(ctx, OpVideo, mode, c.state.Prompt(), nil, resp.URL, resp.Seed, resp.Usage); err != nil {
				return err
			}
			c.state.ApplyVideo(resp.URL)
			return nil
		})
}

// Upscale regenerates the active image at higher resolution and rewrites
// its history record's image list in place. It never appends a record.
func (c *Coordinator) Upscale(ctx context.Context, factor models.UpscaleFactor) error {
	return c.run(ctx, OpUpscale, true, true,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			resp, err := c.svc.Upscale(ctx, &models.UpscaleRequest{
				Source: models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind},
				Factor: factor,
				Model:  c.model,
			})
			if err != nil {
				return err
			}

			updated := make([]history.ImageRecord, 0, len(resp.Images))
			for _, src := range resp.Images {
				updated = append(updated, history.ImageRecord{Src: src, UpscaledTo: factor, IsRefined: true})
			}
			if id := c.state.ActiveHistoryID(); id != "" {
				c.ledger.UpdateImages(id, updated)
			}

			c.mu.Lock()
			c.tokens.InputTokens += resp.Usage.InputTokens
			c.tokens.OutputTokens += resp.Usage.OutputTokens
			c.mu.Unlock()

			c.applyImageResult(resp.Images[0])
			return nil
		})
}

// Reframe re-renders the active image at a different aspect ratio,
// extending the scene to fill the new frame.
func (c *Coordinator) Reframe(ctx context.Context, target models.AspectRatio) error {
	return c.run(ctx, OpReframe, true, true,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			if !target.IsValid() || target == models.AspectAuto {
				return models.ErrInvalidAspectRatio
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			resp, err := c.svc.Reframe(ctx, &models.ReframeRequest{
				Source: models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind},
				Target: target,
				Model:  c.model,
				Seed:   c.seedParam(),
			})
			if err != nil {
				return err
			}
			return c.commitImages(ctx, OpReframe, models.ModeImageToImage, resp)
		})
}

// ChangeViewpoint re-renders the scene from a different camera position.
func (c *Coordinator) ChangeViewpoint(ctx context.Context, direction models.Viewpoint) error {
	return c.run(ctx, OpViewpoint, true, true,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			if !direction.IsValid() {
				return models.ErrInvalidViewpoint
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			resp, err := c.svc.ChangeViewpoint(ctx, &models.ViewpointRequest{
				Source:    models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind},
				Direction: direction,
				Model:     c.model,
				Seed:      c.seedParam(),
			})
			if err != nil {
				return err
			}
			return c.commitImages(ctx, OpViewpoint, models.ModeImageToImage, resp)
		})
}

// Inpaint applies the prompt only inside the masked region of the active
// image.
func (c *Coordinator) Inpaint(ctx context.Context, mask models.SourceImage) error {
	return c.run(ctx, OpInpaint, true, true,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			if mask.Encoded == "" {
				return models.ErrNoMask
			}
			if c.state.Prompt() == "" {
				return models.ErrEmptyPrompt
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			resp, err := c.svc.Inpaint(ctx, &models.InpaintRequest{
				Source: models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind},
				Mask:   mask,
				Prompt: c.assemblePrompt(c.state.Prompt()),
				Model:  c.model,
				Seed:   c.seedParam(),
			})
			if err != nil {
				return err
			}
			return c.commitImages(ctx, OpInpaint, models.ModeImageToImage, resp)
		})
}

// SurpriseMe asks the backend to invent a prompt, adopts it, and
// generates from it in the same operation.
func (c *Coordinator) SurpriseMe(ctx context.Context) error {
	return c.run(ctx, OpSurprise, true, true, nil,
		func(ctx context.Context) error {
			prompt, err := c.svc.SurprisePrompt(ctx)
			if err != nil {
				return err
			}
			c.state.SetPrompt(prompt)

			resp, err := c.svc.Generate(ctx, &models.GenerateRequest{
				Prompt:      c.assemblePrompt(prompt),
				Model:       c.model,
				AspectRatio: c.state.AspectRatio(),
				Seed:        c.seedParam(),
			})
			if err != nil {
				return err
			}
			return c.commitImages(ctx, OpSurprise, models.ModeTextToImage, resp)
		})
}

// Cancel is the cooperative flag for the variations batch. It is checked
// between iterations only: the network call in flight when cancellation
// lands is not aborted, its result is simply discarded.
type Cancel struct {
	flag atomic.Bool
}

func NewCancel() *Cancel { return &Cancel{} }

func (c *Cancel) Cancel()         { c.flag.Store(true) }
func (c *Cancel) Cancelled() bool { return c.flag.Load() }

// Variations sequentially generates up to n variations of the active
// image. Results completed before cancellation are preserved and
// committed as one record.
func (c *Coordinator) Variations(ctx context.Context, n int, cancel *Cancel) error {
	return c.run(ctx, OpVariations, true, true,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			if n < 1 {
				return models.ErrInvalidCount
			}
			if n > models.MaxVariations {
				return models.ErrCountExceedsMax
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			source := models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind}
			prompt := c.state.Prompt()
			if prompt == "" {
				prompt = "a subtle variation of this image"
			}

			var collected []string
			var used models.TokenUsage
			var seed *int64
			var callErr error

			for i := 0; i < n; i++ {
				if cancel != nil && cancel.Cancelled() {
					break
				}
				resp, err := c.svc.Edit(ctx, &models.EditRequest{
					Source: source,
					Prompt: c.assemblePrompt(prompt),
					Model:  c.model,
				})
				if err != nil {
					callErr = err
					break
				}
				if cancel != nil && cancel.Cancelled() {
					// Discard the in-flight result.
					break
				}
				collected = append(collected, resp.Images...)
				used.InputTokens += resp.Usage.InputTokens
				used.OutputTokens += resp.Usage.OutputTokens
				seed = resp.Seed
			}

			if len(collected) == 0 {
				if callErr != nil {
					return callErr
				}
				return nil
			}

			resp := &models.MediaResponse{Images: collected, Seed: seed, Usage: used}
			if err := c.commitImages(ctx, OpVariations, models.ModeImageToImage, resp); err != nil {
				return err
			}
			// Show partial-batch failures without undoing the commit.
			if callErr != nil {
				c.recordFailure(callErr)
			}
			return nil
		})
}

// commitImages is the shared success path for image-producing calls.
func (c *Coordinator) commitImages(ctx context.Context, op Operation, mode models.GenerationMode, resp *models.MediaResponse) error {
	if _, err := c.commit(ctx, op, mode, c.state.Prompt(), resp.Images, "", resp.Seed, resp.Usage); err != nil {
		return err
	}
	c.applyImageResult(resp.Images[0])
	return nil
}

// AnalyzeScene describes the active image. Pure analysis: busy-gated but
// never checkpointed, since it mutates no media.
func (c *Coordinator) AnalyzeScene(ctx context.Context) (string, error) {
	var out string
	err := c.run(ctx, OpAnalysis, false, false,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			text, err := c.svc.AnalyzeScene(ctx, models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind})
			if err != nil {
				return err
			}
			out = text
			return nil
		})
	return out, err
}

// SuggestNegativePrompt asks the backend for artifacts to suppress and
// adopts the suggestion.
func (c *Coordinator) SuggestNegativePrompt(ctx context.Context) (string, error) {
	var out string
	err := c.run(ctx, OpAnalysis, false, false,
		func() error {
			if c.state.Prompt() == "" {
				return models.ErrEmptyPrompt
			}
			return nil
		},
		func(ctx context.Context) error {
			text, err := c.svc.SuggestNegativePrompt(ctx, c.state.Prompt())
			if err != nil {
				return err
			}
			out = text
			c.state.SetNegativePrompt(text)
			return nil
		})
	return out, err
}

// AnalyzeStyle names the active image's visual style as tags.
func (c *Coordinator) AnalyzeStyle(ctx context.Context) (string, error) {
	var out string
	err := c.run(ctx, OpAnalysis, false, false,
		func() error {
			if c.state.ActiveImage() == nil {
				return models.ErrNoActiveImage
			}
			return nil
		},
		func(ctx context.Context) error {
			img := c.state.ActiveImage()
			text, err := c.svc.AnalyzeStyle(ctx, models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind})
			if err != nil {
				return err
			}
			out = text
			return nil
		})
	return out, err
}

// SelectRecord loads a committed generation back into the creation. The
// ledger entry itself is untouched; only working state changes, behind a
// checkpoint.
func (c *Coordinator) SelectRecord(id string) error {
	if c.IsBusy() {
		return ErrBusy
	}
	rec, ok := c.ledger.Get(id)
	if !ok {
		return ErrRecordNotFound
	}

	c.undo.RecordCheckpoint()
	c.state.SetPrompt(rec.Prompt)
	if rec.FineTune != nil {
		c.state.SetNegativePrompt(rec.FineTune.NegativePrompt)
		c.state.SetStyleTags(rec.FineTune.StyleTags)
		if rec.FineTune.DetailIntensity != 0 {
			_ = c.state.SetDetailIntensity(rec.FineTune.DetailIntensity)
		}
		_ = c.state.SetAspectRatio(rec.FineTune.AspectRatio)
	}
	if rec.VideoSrc != "" {
		c.state.ApplyVideo(rec.VideoSrc)
	} else if len(rec.Images) > 0 {
		c.applyImageResult(rec.Images[0].Src)
	}
	c.state.SetActiveHistoryID(rec.ID)
	c.state.SetLastSeed(rec.Seed)
	return nil
}

// DeleteRecords removes ledger entries by id. Working state and the undo
// stacks are unaffected.
func (c *Coordinator) DeleteRecords(ids map[string]struct{}) error {
	if c.IsBusy() {
		return ErrBusy
	}
	c.ledger.Delete(ids)
	return nil
}

// ClearHistory empties the ledger.
func (c *Coordinator) ClearHistory() error {
	if c.IsBusy() {
		return ErrBusy
	}
	c.ledger.Clear()
	return nil
}

// StartFresh discards the working creation behind a checkpoint, so even
// this destructive action is undoable.
func (c *Coordinator) StartFresh() error {
	if c.IsBusy() {
		return ErrBusy
	}
	c.undo.RecordCheckpoint()
	c.state.Reset()
	c.DismissBanner()
	return nil
}

// Undo restores the previous checkpoint; ledger entries never revert.
func (c *Coordinator) Undo() bool {
	if c.IsBusy() {
		return false
	}
	return c.undo.Undo()
}

// Redo restores the most recently undone state.
func (c *Coordinator) Redo() bool {
	if c.IsBusy() {
		return false
	}
	return c.undo.Redo()
}
