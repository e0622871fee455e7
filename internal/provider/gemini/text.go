package gemini

import (
	"context"
	"strings"

	"github.com/manavm/pixstudio/internal/provider"
	"github.com/manavm/pixstudio/pkg/models"
)

const surprisePrompt = "Write one vivid, unexpected image generation prompt of at most 25 words. Reply with the prompt only, no preamble or quotes."

// SurprisePrompt asks the text model to invent a prompt.
func (c *Client) SurprisePrompt(ctx context.Context) (string, error) {
	return c.generateText(ctx, []apiPart{{Text: surprisePrompt}})
}

// AnalyzeScene describes the image's content and composition.
func (c *Client) AnalyzeScene(ctx context.Context, image models.SourceImage) (string, error) {
	return c.generateText(ctx, []apiPart{
		imagePart(image),
		{Text: "Describe this image's subject, composition and lighting in 2-3 sentences."},
	})
}

// SuggestNegativePrompt proposes artifacts to suppress for the prompt.
func (c *Client) SuggestNegativePrompt(ctx context.Context, prompt string) (string, error) {
	return c.generateText(ctx, []apiPart{
		{Text: "Suggest a concise negative prompt (comma-separated artifacts to avoid) for this image prompt. Reply with the negative prompt only.\n\nPrompt: " + prompt},
	})
}

// AnalyzeStyle names the visual style of the image as reusable tags.
func (c *Client) AnalyzeStyle(ctx context.Context, image models.SourceImage) (string, error) {
	return c.generateText(ctx, []apiPart{
		imagePart(image),
		{Text: "Name the visual style of this image as 3-5 short comma-separated tags. Reply with the tags only."},
	})
}

func (c *Client) generateText(ctx context.Context, parts []apiPart) (string, error) {
	apiResp, err := c.generateContent(ctx, c.textModel, &apiRequest{
		Contents: []apiContent{{Parts: parts}},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(firstText(apiResp))
	if text == "" {
		return "", provider.ErrNoMedia
	}
	return strings.Trim(text, "\"“”"), nil
}
