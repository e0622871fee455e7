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

var (
	defaultPollInterval = 10 * time.Second
	maxPollAttempts     = 60 // 10 minutes at 10s intervals
)

type videoInstance struct {
	Prompt string         `json:"prompt"`
	Image  *apiInlineData `json:"image,omitempty"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
}

type videoJobRequest struct {
	Instances  []videoInstance  `json:"instances"`
	Parameters *videoParameters `json:"parameters,omitempty"`
}

type videoOperation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Error    *apiError       `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// GenerateVideo starts a long-running Veo job and polls it to completion,
// reporting coarse status through progress. The job itself is not
// abortable mid-flight beyond context cancellation of the polling.
func (c *Client) GenerateVideo(ctx context.Context, req *models.VideoRequest, progress provider.ProgressFunc) (*models.VideoResponse, error) {
	if req.Prompt == "" && req.Source == nil {
		return nil, models.ErrEmptyPrompt
	}
	if progress == nil {
		progress = func(string) {}
	}

	op, err := c.createVideoJob(ctx, req)
	if err != nil {
		return nil, err
	}
	progress("Video job accepted, rendering...")

	done, err := c.pollVideoJob(ctx, op.Name, progress)
	if err != nil {
		return nil, err
	}

	samples := done.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		return nil, provider.ErrNoMedia
	}
	return &models.VideoResponse{URL: samples[0].Video.URI, Seed: req.Seed}, nil
}

func (c *Client) createVideoJob(ctx context.Context, req *models.VideoRequest) (*videoOperation, error) {
	model := req.Model
	if model == "" {
		model = c.videoModel
	}

	instance := videoInstance{Prompt: req.Prompt}
	if req.Source != nil {
		mime := req.Source.MimeType
		if mime == "" {
			mime = "image/png"
		}
		instance.Image = &apiInlineData{MimeType: mime, Data: req.Source.Encoded}
	}
	params := &videoParameters{Seed: req.Seed}
	if req.AspectRatio != "" && req.AspectRatio != models.AspectAuto {
		params.AspectRatio = string(req.AspectRatio)
	}

	jsonData, err := json.Marshal(&videoJobRequest{
		Instances:  []videoInstance{instance},
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, model)
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

	var op videoOperation
	if err := json.Unmarshal(body, &op); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if op.Error != nil {
		return nil, classifyStatus(op.Error.Code, op.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
	if op.Name == "" {
		return nil, fmt.Errorf("video job returned no operation name")
	}
	return &op, nil
}

func (c *Client) pollVideoJob(ctx context.Context, name string, progress provider.ProgressFunc) (*videoOperation, error) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			op, err := c.getVideoJob(ctx, name)
			if err != nil {
				return nil, err
			}
			if op.Error != nil {
				if isRefusalStatus(op.Error.Status) {
					return nil, &models.RefusalError{Explanation: op.Error.Message}
				}
				return nil, classifyStatus(op.Error.Code, op.Error.Message)
			}
			if op.Done {
				if op.Response == nil {
					return nil, provider.ErrNoMedia
				}
				return op, nil
			}
			progress(fmt.Sprintf("Still rendering (%s elapsed)...", (time.Duration(attempt) * defaultPollInterval).Round(time.Second)))
		}
	}
	return nil, fmt.Errorf("%w: video job did not finish in time", models.ErrTransient)
}

func isRefusalStatus(status string) bool {
	return status == "FAILED_PRECONDITION" || status == "PERMISSION_DENIED"
}

func (c *Client) getVideoJob(ctx context.Context, name string) (*videoOperation, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
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

	var op videoOperation
	if err := json.Unmarshal(body, &op); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && op.Error == nil {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
	return &op, nil
}
