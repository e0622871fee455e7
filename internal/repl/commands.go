package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/manavm/pixstudio/internal/autosave"
	"github.com/manavm/pixstudio/internal/coordinator"
	"github.com/manavm/pixstudio/internal/history"
	"github.com/manavm/pixstudio/internal/media"
	"github.com/manavm/pixstudio/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func (r *REPL) registerCommands() {
	commands := []Command{
		&GenerateCommand{},
		&EditCommand{},
		&VideoCommand{},
		&CombineCommand{},
		&UpscaleCommand{},
		&ReframeCommand{},
		&ViewpointCommand{},
		&InpaintCommand{},
		&VariationsCommand{},
		&SurpriseCommand{},
		&AnalyzeCommand{},
		&NegativeCommand{},
		&StyleCommand{},
		&DetailCommand{},
		&AspectCommand{},
		&SeedCommand{},
		&UploadCommand{},
		&SelectCommand{},
		&BaseCommand{},
		&UndoCommand{},
		&RedoCommand{},
		&HistoryCommand{},
		&DeleteCommand{},
		&ClearCommand{},
		&SaveCommand{},
		&UsageCommand{},
		&FreshCommand{},
		&DismissCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}

	for _, cmd := range commands {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// savePrefs persists the durable fine-tune preferences, best-effort.
func (r *REPL) savePrefs() {
	_ = autosave.SavePreferences(r.kv, r.state)
}

// GenerateCommand runs the primary action under the derived mode.
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string      { return "generate" }
func (c *GenerateCommand) Aliases() []string { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string {
	return "Generate, edit or combine, depending on current selection"
}
func (c *GenerateCommand) Usage() string { return "generate [prompt]" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		r.state.SetPrompt(strings.Join(args, " "))
	}

	mode := models.DeriveOperationMode(r.state.SelectedCount(), r.state.EditSource() != nil)
	fmt.Fprintf(r.out, "Running %s...\n", mode)

	if err := r.coord.GenerateOrEdit(ctx); err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

func (r *REPL) printResult() {
	if url := r.state.VideoURL(); url != "" {
		fmt.Fprintf(r.out, "Video ready: %s\n", url)
		return
	}
	if dims := r.state.ImageDimensions(); dims != nil {
		fmt.Fprintf(r.out, "Done (%dx%d). History: %d/%d\n", dims.Width, dims.Height, r.ledger.Size(), historyCap())
	} else {
		fmt.Fprintf(r.out, "Done. History: %d/%d\n", r.ledger.Size(), historyCap())
	}
	if seed := r.state.LastSeed(); seed != nil {
		fmt.Fprintf(r.out, "Seed used: %d\n", *seed)
	}
}

// EditCommand forces edit mode: it adopts the current image as the edit
// base when none is set, then runs the primary action.
type EditCommand struct{}

func (c *EditCommand) Name() string        { return "edit" }
func (c *EditCommand) Aliases() []string   { return []string{"e"} }
func (c *EditCommand) Description() string { return "Edit the current image with the prompt" }
func (c *EditCommand) Usage() string       { return "edit [prompt]" }

func (c *EditCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if r.state.EditSource() == nil {
		img := r.state.ActiveImage()
		if img == nil {
			return fmt.Errorf("no image to edit: generate one or 'base file <path>' first")
		}
		r.state.SetEditSource(models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind})
	}
	if len(args) > 0 {
		r.state.SetPrompt(strings.Join(args, " "))
	}
	if err := r.coord.GenerateOrEdit(ctx); err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

// VideoCommand animates the prompt or the active image.
type VideoCommand struct{}

func (c *VideoCommand) Name() string        { return "video" }
func (c *VideoCommand) Aliases() []string   { return []string{"animate", "v"} }
func (c *VideoCommand) Description() string { return "Generate a short video (takes minutes)" }
func (c *VideoCommand) Usage() string       { return "video [prompt]" }

func (c *VideoCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		r.state.SetPrompt(strings.Join(args, " "))
	}

	fmt.Fprintln(r.out, "Starting video generation. This can take several minutes and cannot be cancelled.")
	err := r.coord.GenerateVideo(ctx, func(status string) {
		fmt.Fprintf(r.out, "  %s\n", status)
	})
	if err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

// CombineCommand merges the selected staged images.
type CombineCommand struct{}

func (c *CombineCommand) Name() string        { return "combine" }
func (c *CombineCommand) Aliases() []string   { return []string{"merge"} }
func (c *CombineCommand) Description() string { return "Combine the selected uploaded images" }
func (c *CombineCommand) Usage() string       { return "combine [prompt]" }

func (c *CombineCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		r.state.SetPrompt(strings.Join(args, " "))
	}
	if n := r.state.SelectedCount(); n < 2 {
		fmt.Fprintf(r.out, "Select at least 2 uploaded images first (%d selected). See 'upload' and 'select'.\n", n)
		return nil
	}
	if err := r.coord.Combine(ctx); err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

// UpscaleCommand upscales the active image in place.
type UpscaleCommand struct{}

func (c *UpscaleCommand) Name() string        { return "upscale" }
func (c *UpscaleCommand) Aliases() []string   { return []string{"up"} }
func (c *UpscaleCommand) Description() string { return "Upscale the current image (2x or 4x)" }
func (c *UpscaleCommand) Usage() string       { return "upscale [2x|4x]" }

func (c *UpscaleCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	factor := models.Upscale2x
	if len(args) > 0 {
		factor = models.UpscaleFactor(strings.ToLower(args[0]))
		if !factor.IsValid() {
			return fmt.Errorf("usage: %s", c.Usage())
		}
	}
	if err := r.coord.Upscale(ctx, factor); err != nil {
		r.reportOpError(err)
		return nil
	}
	fmt.Fprintf(r.out, "Upscaled %s.\n", factor)
	return nil
}

// ReframeCommand re-renders the active image at a new aspect ratio.
type ReframeCommand struct{}

func (c *ReframeCommand) Name() string        { return "reframe" }
func (c *ReframeCommand) Aliases() []string   { return nil }
func (c *ReframeCommand) Description() string { return "Reframe the current image to a new aspect ratio" }
func (c *ReframeCommand) Usage() string       { return "reframe <1:1|16:9|9:16|4:3|3:4>" }

func (c *ReframeCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	target := models.AspectRatio(args[0])
	if err := r.coord.Reframe(ctx, target); err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

// ViewpointCommand re-renders the scene from another camera position.
type ViewpointCommand struct{}

func (c *ViewpointCommand) Name() string        { return "viewpoint" }
func (c *ViewpointCommand) Aliases() []string   { return []string{"view"} }
func (c *ViewpointCommand) Description() string { return "Re-render the scene from a different viewpoint" }
func (c *ViewpointCommand) Usage() string {
	return "viewpoint <left|right|above|below|closer|farther|opposite>"
}

func (c *ViewpointCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	direction := models.Viewpoint(strings.ToLower(args[0]))
	if err := r.coord.ChangeViewpoint(ctx, direction); err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

// InpaintCommand applies the prompt inside a mask image.
type InpaintCommand struct{}

func (c *InpaintCommand) Name() string        { return "inpaint" }
func (c *InpaintCommand) Aliases() []string   { return nil }
func (c *InpaintCommand) Description() string { return "Edit only the masked region of the current image" }
func (c *InpaintCommand) Usage() string       { return "inpaint <mask.png> [prompt]" }

func (c *InpaintCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	encoded, mimeType, err := media.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load mask: %w", err)
	}
	if len(args) > 1 {
		r.state.SetPrompt(strings.Join(args[1:], " "))
	}
	mask := models.SourceImage{Encoded: encoded, MimeType: mimeType}
	if err := r.coord.Inpaint(ctx, mask); err != nil {
		r.reportOpError(err)
		return nil
	}
	r.printResult()
	return nil
}

// VariationsCommand generates a cancellable batch of variations.
type VariationsCommand struct{}

func (c *VariationsCommand) Name() string        { return "variations" }
func (c *VariationsCommand) Aliases() []string   { return []string{"vary"} }
func (c *VariationsCommand) Description() string { return "Generate N variations of the current image (Ctrl-C to stop early)" }
func (c *VariationsCommand) Usage() string       { return "variations <n>" }

func (c *VariationsCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	n := 4
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		n = parsed
	}

	cancel := coordinator.NewCancel()
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		// An interrupt flips the cooperative flag; completed results
		// up to that point are kept.
		select {
		case <-ctx.Done():
			cancel.Cancel()
		case <-watchCtx.Done():
		}
	}()

	fmt.Fprintf(r.out, "Generating %d variations...\n", n)
	if err := r.coord.Variations(context.WithoutCancel(ctx), n, cancel); err != nil {
		r.reportOpError(err)
		return nil
	}
	if cancel.Cancelled() {
		fmt.Fprintln(r.out, "Stopped early; completed variations were kept.")
	}
	r.printResult()
	return nil
}

// SurpriseCommand lets the backend invent the prompt.
type SurpriseCommand struct{}

func (c *SurpriseCommand) Name() string        { return "surprise" }
func (c *SurpriseCommand) Aliases() []string   { return []string{"surprise-me"} }
func (c *SurpriseCommand) Description() string { return "Generate from a model-invented prompt" }
func (c *SurpriseCommand) Usage() string       { return "surprise" }

func (c *SurpriseCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if err := r.coord.SurpriseMe(ctx); err != nil {
		r.reportOpError(err)
		return nil
	}
	fmt.Fprintf(r.out, "Prompt: %s\n", r.state.Prompt())
	r.printResult()
	return nil
}

// AnalyzeCommand runs the pure-analysis operations.
type AnalyzeCommand struct{}

func (c *AnalyzeCommand) Name() string        { return "analyze" }
func (c *AnalyzeCommand) Aliases() []string   { return nil }
func (c *AnalyzeCommand) Description() string { return "Analyze the current image or prompt" }
func (c *AnalyzeCommand) Usage() string       { return "analyze <scene|style|negative>" }

func (c *AnalyzeCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	var text string
	var err error
	switch strings.ToLower(args[0]) {
	case "scene":
		text, err = r.coord.AnalyzeScene(ctx)
	case "style":
		text, err = r.coord.AnalyzeStyle(ctx)
	case "negative":
		text, err = r.coord.SuggestNegativePrompt(ctx)
		if err == nil {
			r.savePrefs()
		}
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err != nil {
		r.reportOpError(err)
		return nil
	}
	fmt.Fprintln(r.out, text)
	return nil
}

// NegativeCommand sets or clears the negative prompt.
type NegativeCommand struct{}

func (c *NegativeCommand) Name() string        { return "negative" }
func (c *NegativeCommand) Aliases() []string   { return []string{"neg"} }
func (c *NegativeCommand) Description() string { return "Set or clear the negative prompt" }
func (c *NegativeCommand) Usage() string       { return "negative [text|clear]" }

func (c *NegativeCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if neg := r.state.NegativePrompt(); neg != "" {
			fmt.Fprintf(r.out, "Negative prompt: %s\n", neg)
		} else {
			fmt.Fprintln(r.out, "No negative prompt set.")
		}
		return nil
	}
	if len(args) == 1 && strings.ToLower(args[0]) == "clear" {
		r.state.SetNegativePrompt("")
	} else {
		r.state.SetNegativePrompt(strings.Join(args, " "))
	}
	r.savePrefs()
	return nil
}

// StyleCommand toggles style tags.
type StyleCommand struct{}

func (c *StyleCommand) Name() string        { return "style" }
func (c *StyleCommand) Aliases() []string   { return nil }
func (c *StyleCommand) Description() string { return "Toggle a style tag, or list active tags" }
func (c *StyleCommand) Usage() string       { return "style [tag]" }

func (c *StyleCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		tags := r.state.StyleTags()
		if len(tags) == 0 {
			fmt.Fprintln(r.out, "No style tags active.")
		} else {
			fmt.Fprintf(r.out, "Active styles: %s\n", strings.Join(tags, ", "))
		}
		return nil
	}
	tag := strings.ToLower(strings.Join(args, " "))
	if r.state.ToggleStyleTag(tag) {
		fmt.Fprintf(r.out, "Style %q on.\n", tag)
	} else {
		fmt.Fprintf(r.out, "Style %q off.\n", tag)
	}
	r.savePrefs()
	return nil
}

// DetailCommand sets the detail intensity.
type DetailCommand struct{}

func (c *DetailCommand) Name() string        { return "detail" }
func (c *DetailCommand) Aliases() []string   { return nil }
func (c *DetailCommand) Description() string { return "Set detail intensity (1-5)" }
func (c *DetailCommand) Usage() string       { return "detail <1-5>" }

func (c *DetailCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Detail intensity: %d\n", r.state.DetailIntensity())
		return nil
	}
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.state.SetDetailIntensity(level); err != nil {
		return err
	}
	r.savePrefs()
	return nil
}

// AspectCommand sets the aspect ratio.
type AspectCommand struct{}

func (c *AspectCommand) Name() string        { return "aspect" }
func (c *AspectCommand) Aliases() []string   { return []string{"ar"} }
func (c *AspectCommand) Description() string { return "Set the aspect ratio" }
func (c *AspectCommand) Usage() string       { return "aspect <auto|1:1|16:9|9:16|4:3|3:4>" }

func (c *AspectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Aspect ratio: %s\n", r.state.AspectRatio())
		return nil
	}
	if err := r.state.SetAspectRatio(models.AspectRatio(args[0])); err != nil {
		return err
	}
	r.savePrefs()
	return nil
}

// SeedCommand manages the requested seed and shows the last used one.
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Aliases() []string   { return nil }
func (c *SeedCommand) Description() string { return "Set, clear or show the generation seed" }
func (c *SeedCommand) Usage() string       { return "seed [number|clear]" }

func (c *SeedCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if in := r.state.SeedInput(); in != "" {
			fmt.Fprintf(r.out, "Requested seed: %s\n", in)
		}
		if last := r.state.LastSeed(); last != nil {
			fmt.Fprintf(r.out, "Last used seed: %d\n", *last)
		} else {
			fmt.Fprintln(r.out, "No seed recorded yet.")
		}
		return nil
	}
	if strings.ToLower(args[0]) == "clear" {
		r.state.SetSeedInput("")
		return nil
	}
	r.state.SetSeedInput(args[0])
	if r.state.SeedInput() == "" {
		return fmt.Errorf("seed must be numeric")
	}
	return nil
}

// UploadCommand stages a local image for combining.
type UploadCommand struct{}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Aliases() []string   { return []string{"add"} }
func (c *UploadCommand) Description() string { return "Stage a local image for combining (max 6)" }
func (c *UploadCommand) Usage() string       { return "upload <path>" }

func (c *UploadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	encoded, mimeType, err := media.LoadFile(args[0])
	if err != nil {
		return err
	}
	if _, err := r.state.AddCandidate(encoded, mimeType); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Staged %s (%d/%d, selected).\n", args[0], len(r.state.Candidates()), models.MaxCombineImages)
	return nil
}

// SelectCommand toggles staged images in and out of the combine set.
type SelectCommand struct{}

func (c *SelectCommand) Name() string        { return "select" }
func (c *SelectCommand) Aliases() []string   { return nil }
func (c *SelectCommand) Description() string { return "Toggle a staged image's selection, or list them" }
func (c *SelectCommand) Usage() string       { return "select [index|clear]" }

func (c *SelectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	cands := r.state.Candidates()
	if len(args) == 0 {
		if len(cands) == 0 {
			fmt.Fprintln(r.out, "Nothing staged. Use 'upload <path>'.")
			return nil
		}
		for i, cand := range cands {
			mark := " "
			if cand.Selected {
				mark = "*"
			}
			fmt.Fprintf(r.out, "%s %d. %s (%s)\n", mark, i+1, cand.ID[:8], cand.MimeType)
		}
		return nil
	}
	if strings.ToLower(args[0]) == "clear" {
		r.state.ClearCandidates()
		fmt.Fprintln(r.out, "Staging area cleared.")
		return nil
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 1 || idx > len(cands) {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	selected, err := r.state.ToggleCandidate(cands[idx-1].ID)
	if err != nil {
		return err
	}
	if selected {
		fmt.Fprintf(r.out, "Image %d selected.\n", idx)
	} else {
		fmt.Fprintf(r.out, "Image %d deselected.\n", idx)
	}
	return nil
}

// BaseCommand controls the edit-source image, the switch between fresh
// generation and editing.
type BaseCommand struct{}

func (c *BaseCommand) Name() string        { return "base" }
func (c *BaseCommand) Aliases() []string   { return nil }
func (c *BaseCommand) Description() string { return "Use the current image as edit base, or clear it" }
func (c *BaseCommand) Usage() string       { return "base <set|clear|file <path>>" }

func (c *BaseCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if src := r.state.EditSource(); src != nil {
			fmt.Fprintln(r.out, "Edit base set: next generate edits it.")
		} else {
			fmt.Fprintln(r.out, "No edit base: next generate starts fresh.")
		}
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "set":
		img := r.state.ActiveImage()
		if img == nil {
			return fmt.Errorf("no current image to use as base")
		}
		r.state.SetEditSource(models.SourceImage{Encoded: img.Encoded, MimeType: img.Kind})
		fmt.Fprintln(r.out, "Edit base set from the current image.")
	case "clear":
		r.state.ClearEditSource()
		fmt.Fprintln(r.out, "Edit base cleared.")
	case "file":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		encoded, mimeType, err := media.LoadFile(args[1])
		if err != nil {
			return err
		}
		r.state.SetEditSource(models.SourceImage{Encoded: encoded, MimeType: mimeType})
		fmt.Fprintf(r.out, "Edit base set from %s.\n", args[1])
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return nil
}

// UndoCommand steps the creation state back one checkpoint.
type UndoCommand struct{}

func (c *UndoCommand) Name() string        { return "undo" }
func (c *UndoCommand) Aliases() []string   { return []string{"u"} }
func (c *UndoCommand) Description() string { return "Undo the last operation on the creation" }
func (c *UndoCommand) Usage() string       { return "undo" }

func (c *UndoCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if !r.coord.Undo() {
		fmt.Fprintln(r.out, "Nothing to undo.")
		return nil
	}
	fmt.Fprintln(r.out, "Undone. History entries are unaffected.")
	return nil
}

// RedoCommand steps forward again.
type RedoCommand struct{}

func (c *RedoCommand) Name() string        { return "redo" }
func (c *RedoCommand) Aliases() []string   { return nil }
func (c *RedoCommand) Description() string { return "Redo the most recently undone change" }
func (c *RedoCommand) Usage() string       { return "redo" }

func (c *RedoCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if !r.coord.Redo() {
		fmt.Fprintln(r.out, "Nothing to redo.")
		return nil
	}
	fmt.Fprintln(r.out, "Redone.")
	return nil
}

// HistoryCommand lists, selects, deletes and clears ledger records.
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h"} }
func (c *HistoryCommand) Description() string { return "Show history, or select/delete/clear entries" }
func (c *HistoryCommand) Usage() string       { return "history [select <n>|delete <n...>|clear]" }

func (c *HistoryCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	records := r.ledger.Records()

	if len(args) == 0 {
		if len(records) == 0 {
			fmt.Fprintln(r.out, "History is empty.")
			return nil
		}
		fmt.Fprintf(r.out, "History (%d/%d):\n", len(records), historyCap())
		for i, rec := range records {
			marker := " "
			if rec.ID == r.state.ActiveHistoryID() {
				marker = ">"
			}
			kind := string(rec.Mode)
			age := humanize.Time(time.UnixMilli(rec.Timestamp))
			prompt := rec.Prompt
			if len(prompt) > 48 {
				prompt = prompt[:45] + "..."
			}
			fmt.Fprintf(r.out, "%s %2d. [%s] %q (%s)\n", marker, i+1, kind, prompt, age)
		}
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "select":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		rec, err := recordAt(records, args[1])
		if err != nil {
			return err
		}
		if err := r.coord.SelectRecord(rec.ID); err != nil {
			r.reportOpError(err)
			return nil
		}
		fmt.Fprintf(r.out, "Loaded %q back into the studio.\n", rec.Prompt)
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		ids := make(map[string]struct{})
		for _, arg := range args[1:] {
			rec, err := recordAt(records, arg)
			if err != nil {
				return err
			}
			ids[rec.ID] = struct{}{}
		}
		if err := r.coord.DeleteRecords(ids); err != nil {
			r.reportOpError(err)
			return nil
		}
		fmt.Fprintf(r.out, "Deleted %d record(s). History: %d/%d\n", len(ids), r.ledger.Size(), historyCap())
	case "clear":
		if err := r.coord.ClearHistory(); err != nil {
			r.reportOpError(err)
			return nil
		}
		fmt.Fprintln(r.out, "History cleared.")
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return nil
}

// DeleteCommand is the top-level form of 'history delete'.
type DeleteCommand struct{}

func (c *DeleteCommand) Name() string        { return "delete" }
func (c *DeleteCommand) Aliases() []string   { return nil }
func (c *DeleteCommand) Description() string { return "Delete history entries by number" }
func (c *DeleteCommand) Usage() string       { return "delete <n...>" }

func (c *DeleteCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return (&HistoryCommand{}).Execute(ctx, r, append([]string{"delete"}, args...))
}

// ClearCommand is the top-level form of 'history clear'.
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return nil }
func (c *ClearCommand) Description() string { return "Clear all history entries" }
func (c *ClearCommand) Usage() string       { return "clear" }

func (c *ClearCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	return (&HistoryCommand{}).Execute(ctx, r, []string{"clear"})
}

// SaveCommand exports the current result to disk.
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"export"} }
func (c *SaveCommand) Description() string { return "Save the current image or video to a file" }
func (c *SaveCommand) Usage() string       { return "save <path>" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	path := args[0]
	if url := r.state.VideoURL(); url != "" {
		fmt.Fprintln(r.out, "Downloading video...")
		if err := r.saver.Download(ctx, url, path); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Saved: %s\n", path)
		return nil
	}
	img := r.state.ActiveImage()
	if img == nil {
		return fmt.Errorf("nothing to save yet")
	}
	if err := r.saver.SaveEncoded(img.Encoded, path); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved: %s\n", path)
	return nil
}

// UsageCommand prints token consumption.
type UsageCommand struct{}

func (c *UsageCommand) Name() string        { return "usage" }
func (c *UsageCommand) Aliases() []string   { return []string{"tokens"} }
func (c *UsageCommand) Description() string { return "Show token usage for this session and overall" }
func (c *UsageCommand) Usage() string       { return "usage" }

func (c *UsageCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	session := r.coord.SessionTokens()
	fmt.Fprintf(r.out, "This session: %s tokens (%s in / %s out)\n",
		humanize.Comma(int64(session.Total())),
		humanize.Comma(int64(session.InputTokens)),
		humanize.Comma(int64(session.OutputTokens)))

	if r.usage == nil {
		return nil
	}
	totals, err := r.usage.Totals(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage log: %w", err)
	}
	fmt.Fprintf(r.out, "All time: %s tokens across %d generations (%d media)\n",
		humanize.Comma(int64(totals.TotalTokens())), totals.EntryCount, totals.MediaCount)

	byOp, err := r.usage.ByOperation(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage log: %w", err)
	}
	for _, op := range byOp {
		fmt.Fprintf(r.out, "  %-12s %s tokens, %d media\n",
			op.Operation, humanize.Comma(int64(op.InputTokens+op.OutputTokens)), op.MediaCount)
	}
	return nil
}

// FreshCommand starts a new creation.
type FreshCommand struct{}

func (c *FreshCommand) Name() string        { return "fresh" }
func (c *FreshCommand) Aliases() []string   { return []string{"new"} }
func (c *FreshCommand) Description() string { return "Start a fresh creation (undoable)" }
func (c *FreshCommand) Usage() string       { return "fresh" }

func (c *FreshCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if err := r.coord.StartFresh(); err != nil {
		r.reportOpError(err)
		return nil
	}
	// The creation is now empty; drop the stored autosave immediately
	// instead of waiting for the next tick.
	_ = r.saved.Sync()
	fmt.Fprintln(r.out, "Fresh creation started ('undo' brings the old one back).")
	return nil
}

// DismissCommand clears the current banner.
type DismissCommand struct{}

func (c *DismissCommand) Name() string        { return "dismiss" }
func (c *DismissCommand) Aliases() []string   { return nil }
func (c *DismissCommand) Description() string { return "Dismiss the current error message" }
func (c *DismissCommand) Usage() string       { return "dismiss" }

func (c *DismissCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	r.coord.DismissBanner()
	return nil
}

// HelpCommand lists commands.
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	seen := make(map[string]bool)
	var list []Command
	for _, cmd := range r.commands {
		if !seen[cmd.Name()] {
			seen[cmd.Name()] = true
			list = append(list, cmd)
		}
	}
	// Stable order for reading.
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].Name() < list[i].Name() {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	for _, cmd := range list {
		fmt.Fprintf(r.out, "  %-12s %s\n", cmd.Name(), cmd.Description())
	}
	return nil
}

// QuitCommand exits the studio.
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit pixstudio" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	_ = r.saved.Sync()
	r.Stop()
	return nil
}

func historyCap() int {
	return history.MaxItems
}

func recordAt(records []*history.Record, arg string) (*history.Record, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 || idx > len(records) {
		return nil, fmt.Errorf("no history entry %q", arg)
	}
	return records[idx-1], nil
}
