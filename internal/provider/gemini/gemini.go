// Package gemini implements the generation backend against the Gemini
// REST API. Image operations go through generateContent on an
// image-capable model; video goes through a long-running Veo job.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/manavm/pixstudio/internal/provider"
	"github.com/manavm/pixstudio/pkg/models"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel      = "gemini-2.5-flash-image"
	defaultTextModel  = "gemini-2.5-flash"
	defaultVideoModel = "veo-3.1"
	defaultTimeout    = 120 * time.Second
)

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	textModel  string
	videoModel string
	httpClient *http.Client
}

func New(cfg *provider.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	videoModel := cfg.VideoModel
	if videoModel == "" {
		videoModel = defaultVideoModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		textModel:  defaultTextModel,
		videoModel: videoModel,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inlineData,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiGenerationConfig struct {
	Seed        *int64          `json:"seed,omitempty"`
	ImageConfig *apiImageConfig `json:"imageConfig,omitempty"`
}

type apiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type apiRequest struct {
	Contents         []apiContent         `json:"contents"`
	GenerationConfig *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason,omitempty"`
}

type apiPromptFeedback struct {
	BlockReason        string `json:"blockReason,omitempty"`
	BlockReasonMessage string `json:"blockReasonMessage,omitempty"`
}

type apiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type apiResponse struct {
	Candidates     []apiCandidate     `json:"candidates"`
	PromptFeedback *apiPromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *apiUsage          `json:"usageMetadata,omitempty"`
	ModelVersion   string             `json:"modelVersion,omitempty"`
	Seed           *int64             `json:"seed,omitempty"`
	Error          *apiError          `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *Client) Generate(ctx context.Context, req *models.GenerateRequest) (*models.MediaResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	apiReq := &apiRequest{
		Contents:         []apiContent{{Parts: []apiPart{{Text: req.Prompt}}}},
		GenerationConfig: imageConfig(req.AspectRatio, req.Seed),
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, req.Seed)
}

func (c *Client) Edit(ctx context.Context, req *models.EditRequest) (*models.MediaResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	apiReq := &apiRequest{
		Contents: []apiContent{{Parts: []apiPart{
			imagePart(req.Source),
			{Text: req.Prompt},
		}}},
		GenerationConfig: imageConfig("", req.Seed),
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, req.Seed)
}

func (c *Client) Combine(ctx context.Context, req *models.CombineRequest) (*models.MediaResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	parts := make([]apiPart, 0, len(req.Sources)+1)
	for _, src := range req.Sources {
		parts = append(parts, imagePart(src))
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = "Combine these images into a single cohesive scene."
	}
	parts = append(parts, apiPart{Text: prompt})
	apiReq := &apiRequest{
		Contents:         []apiContent{{Parts: parts}},
		GenerationConfig: imageConfig("", req.Seed),
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, req.Seed)
}

func (c *Client) Upscale(ctx context.Context, req *models.UpscaleRequest) (*models.MediaResponse, error) {
	if req.Source.Encoded == "" {
		return nil, models.ErrNoActiveImage
	}
	prompt := fmt.Sprintf("Upscale this image to %s of its original resolution. Preserve all content and composition exactly; only add detail and sharpness.", req.Factor)
	apiReq := &apiRequest{
		Contents: []apiContent{{Parts: []apiPart{
			imagePart(req.Source),
			{Text: prompt},
		}}},
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, nil)
}

func (c *Client) Reframe(ctx context.Context, req *models.ReframeRequest) (*models.MediaResponse, error) {
	if req.Source.Encoded == "" {
		return nil, models.ErrNoActiveImage
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = "Extend the scene naturally to fill the new frame."
	}
	prompt = fmt.Sprintf("Reframe this image to a %s aspect ratio. %s", req.Target, prompt)
	apiReq := &apiRequest{
		Contents: []apiContent{{Parts: []apiPart{
			imagePart(req.Source),
			{Text: prompt},
		}}},
		GenerationConfig: imageConfig(req.Target, req.Seed),
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, req.Seed)
}

func (c *Client) Inpaint(ctx context.Context, req *models.InpaintRequest) (*models.MediaResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("Apply this change only inside the white region of the mask, leaving everything else untouched: %s", req.Prompt)
	apiReq := &apiRequest{
		Contents: []apiContent{{Parts: []apiPart{
			imagePart(req.Source),
			imagePart(req.Mask),
			{Text: prompt},
		}}},
		GenerationConfig: imageConfig("", req.Seed),
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, req.Seed)
}

func (c *Client) ChangeViewpoint(ctx context.Context, req *models.ViewpointRequest) (*models.MediaResponse, error) {
	if req.Source.Encoded == "" {
		return nil, models.ErrNoActiveImage
	}
	if !req.Direction.IsValid() {
		return nil, fmt.Errorf("invalid viewpoint: %q", req.Direction)
	}
	prompt := fmt.Sprintf("Render the same scene from a camera position %s of the current viewpoint, keeping subjects and lighting consistent.", viewpointPhrase(req.Direction))
	apiReq := &apiRequest{
		Contents: []apiContent{{Parts: []apiPart{
			imagePart(req.Source),
			{Text: prompt},
		}}},
		GenerationConfig: imageConfig("", req.Seed),
	}
	return c.generateMedia(ctx, c.pickModel(req.Model), apiReq, req.Seed)
}

func viewpointPhrase(v models.Viewpoint) string {
	switch v {
	case models.ViewpointCloser:
		return "much closer to the subject"
	case models.ViewpointFarther:
		return "much farther from the subject"
	case models.ViewpointOpposite:
		return "on the opposite side"
	case models.ViewpointAbove:
		return "directly above"
	case models.ViewpointBelow:
		return "below, looking up"
	default:
		return fmt.Sprintf("to the %s", v)
	}
}

func (c *Client) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func imagePart(src models.SourceImage) apiPart {
	mime := src.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return apiPart{InlineData: &apiInlineData{MimeType: mime, Data: src.Encoded}}
}

func imageConfig(ratio models.AspectRatio, seed *int64) *apiGenerationConfig {
	cfg := &apiGenerationConfig{Seed: seed}
	if ratio != "" && ratio != models.AspectAuto {
		cfg.ImageConfig = &apiImageConfig{AspectRatio: string(ratio)}
	}
	if cfg.Seed == nil && cfg.ImageConfig == nil {
		return nil
	}
	return cfg
}

// generateMedia runs one generateContent call and extracts inline images.
func (c *Client) generateMedia(ctx context.Context, model string, apiReq *apiRequest, requested *int64) (*models.MediaResponse, error) {
	apiResp, err := c.generateContent(ctx, model, apiReq)
	if err != nil {
		return nil, err
	}

	resp := &models.MediaResponse{}
	for _, cand := range apiResp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				resp.Images = append(resp.Images, part.InlineData.Data)
			}
		}
	}
	if len(resp.Images) == 0 {
		// No media but no block either: treat any returned text as a
		// conversational decline.
		if text := firstText(apiResp); text != "" {
			return nil, &models.RefusalError{Explanation: text}
		}
		return nil, provider.ErrNoMedia
	}

	if apiResp.UsageMetadata != nil {
		resp.Usage = models.TokenUsage{
			InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
		}
	}
	// The echoed seed is authoritative; fall back to the requested one
	// only when the backend omits it.
	if apiResp.Seed != nil {
		resp.Seed = apiResp.Seed
	} else {
		resp.Seed = requested
	}
	return resp, nil
}

func firstText(apiResp *apiResponse) string {
	for _, cand := range apiResp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

func (c *Client) generateContent(ctx context.Context, model string, apiReq *apiRequest) (*apiResponse, error) {
	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransient, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, classifyStatus(apiResp.Error.Code, apiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		msg := apiResp.PromptFeedback.BlockReasonMessage
		if msg == "" {
			msg = "The request was declined by the content policy (" + apiResp.PromptFeedback.BlockReason + ")."
		}
		return nil, &models.RefusalError{Explanation: msg}
	}
	for _, cand := range apiResp.Candidates {
		switch cand.FinishReason {
		case "SAFETY", "PROHIBITED_CONTENT", "IMAGE_SAFETY":
			msg := firstText(&apiResp)
			if msg == "" {
				msg = "The model declined to produce this content."
			}
			return nil, &models.RefusalError{Explanation: msg}
		}
	}

	return &apiResp, nil
}

// classifyStatus buckets an HTTP or API status into the typed failure
// taxonomy.
func classifyStatus(code int, message string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", models.ErrQuotaExceeded, message)
	case code == http.StatusServiceUnavailable,
		code == http.StatusBadGateway,
		code == http.StatusGatewayTimeout,
		code == http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", models.ErrTransient, code, message)
	default:
		return fmt.Errorf("generation failed: status %d: %s", code, message)
	}
}
