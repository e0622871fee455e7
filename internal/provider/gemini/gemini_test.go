package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/manavm/pixstudio/internal/provider"
	"github.com/manavm/pixstudio/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(&provider.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func imageResponse(encoded string) string {
	return `{
		"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "image/png", "data": "` + encoded + `"}}]}}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 300}
	}`
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(&provider.Config{}); !errors.Is(err, provider.ErrAPIKeyRequired) {
		t.Errorf("New() error = %v, want %v", err, provider.ErrAPIKeyRequired)
	}
}

func TestGenerate_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReq apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Write([]byte(imageResponse("aW1n")))
	})

	resp, err := client.Generate(context.Background(), &models.GenerateRequest{
		Prompt:      "a red fox",
		AspectRatio: models.AspectWide,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gotPath != "/models/gemini-2.5-flash-image:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotReq.Contents[0].Parts[0].Text != "a red fox" {
		t.Errorf("request prompt = %q", gotReq.Contents[0].Parts[0].Text)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ImageConfig.AspectRatio != "16:9" {
		t.Errorf("request aspect ratio config = %+v", gotReq.GenerationConfig)
	}
	if len(resp.Images) != 1 || resp.Images[0] != "aW1n" {
		t.Errorf("Images = %v", resp.Images)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 300 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestGenerate_AutoRatioOmitsImageConfig(t *testing.T) {
	var gotReq apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Write([]byte(imageResponse("aW1n")))
	})

	if _, err := client.Generate(context.Background(), models.NewGenerateRequest("a fox")); err != nil {
		t.Fatal(err)
	}
	if gotReq.GenerationConfig != nil {
		t.Errorf("GenerationConfig = %+v, want omitted for auto ratio without seed", gotReq.GenerationConfig)
	}
}

func TestGenerate_EchoedSeedWins(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "image/png", "data": "aW1n"}}]}}],
			"seed": 999
		}`))
	})

	requested := int64(5)
	resp, err := client.Generate(context.Background(), &models.GenerateRequest{Prompt: "a fox", Seed: &requested})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Seed == nil || *resp.Seed != 999 {
		t.Errorf("Seed = %v, want the echoed 999", resp.Seed)
	}
}

func TestGenerate_RequestedSeedFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(imageResponse("aW1n")))
	})

	requested := int64(5)
	resp, err := client.Generate(context.Background(), &models.GenerateRequest{Prompt: "a fox", Seed: &requested})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Seed == nil || *resp.Seed != 5 {
		t.Errorf("Seed = %v, want the requested 5", resp.Seed)
	}
}

func TestGenerate_BlockReasonIsRefusal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback": {"blockReason": "SAFETY", "blockReasonMessage": "try a different subject"}}`))
	})

	_, err := client.Generate(context.Background(), models.NewGenerateRequest("something"))
	refusal, ok := models.AsRefusal(err)
	if !ok {
		t.Fatalf("error = %v, want a refusal", err)
	}
	if refusal.Explanation != "try a different subject" {
		t.Errorf("Explanation = %q", refusal.Explanation)
	}
}

func TestGenerate_SafetyFinishIsRefusal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [{"finishReason": "IMAGE_SAFETY", "content": {"parts": []}}]}`))
	})

	_, err := client.Generate(context.Background(), models.NewGenerateRequest("something"))
	if !models.IsRefusal(err) {
		t.Errorf("error = %v, want a refusal", err)
	}
}

func TestGenerate_TextWithoutMediaIsRefusal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "I'd rather not draw that, how about a landscape?"}]}}]}`))
	})

	_, err := client.Generate(context.Background(), models.NewGenerateRequest("something"))
	refusal, ok := models.AsRefusal(err)
	if !ok {
		t.Fatalf("error = %v, want a refusal", err)
	}
	if !strings.Contains(refusal.Explanation, "landscape") {
		t.Errorf("Explanation = %q, want the model's text verbatim", refusal.Explanation)
	}
}

func TestGenerate_EmptyResponseIsNoMedia(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	})

	_, err := client.Generate(context.Background(), models.NewGenerateRequest("a fox"))
	if !errors.Is(err, provider.ErrNoMedia) {
		t.Errorf("error = %v, want %v", err, provider.ErrNoMedia)
	}
}

func TestGenerate_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, models.ErrQuotaExceeded},
		{"unavailable", http.StatusServiceUnavailable, models.ErrTransient},
		{"bad gateway", http.StatusBadGateway, models.ErrTransient},
		{"internal", http.StatusInternalServerError, models.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"code": ` + strconv.Itoa(tt.status) + `, "message": "upstream"}}`))
			})

			_, err := client.Generate(context.Background(), models.NewGenerateRequest("a fox"))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerate_BadRequestIsUnclassified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "invalid argument"}}`))
	})

	_, err := client.Generate(context.Background(), models.NewGenerateRequest("a fox"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := models.Classify(err); got != models.FailureUnclassified {
		t.Errorf("Classify() = %v, want unclassified", got)
	}
}

func TestGenerate_TransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := New(&provider.Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Generate(context.Background(), models.NewGenerateRequest("a fox"))
	if !errors.Is(err, models.ErrTransient) {
		t.Errorf("error = %v, want %v", err, models.ErrTransient)
	}
}

func TestEdit_SendsImageThenPrompt(t *testing.T) {
	var gotReq apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Write([]byte(imageResponse("ZWRpdGVk")))
	})

	_, err := client.Edit(context.Background(), &models.EditRequest{
		Source: models.SourceImage{Encoded: "c3Jj", MimeType: "image/jpeg"},
		Prompt: "add a hat",
	})
	if err != nil {
		t.Fatal(err)
	}

	parts := gotReq.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0].InlineData == nil || parts[0].InlineData.Data != "c3Jj" || parts[0].InlineData.MimeType != "image/jpeg" {
		t.Errorf("first part = %+v, want the source image", parts[0])
	}
	if parts[1].Text != "add a hat" {
		t.Errorf("second part = %+v, want the prompt", parts[1])
	}
}

func TestCombine_SendsAllSources(t *testing.T) {
	var gotReq apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Write([]byte(imageResponse("bWVyZ2Vk")))
	})

	_, err := client.Combine(context.Background(), &models.CombineRequest{
		Sources: []models.SourceImage{
			{Encoded: "b25l", MimeType: "image/png"},
			{Encoded: "dHdv", MimeType: "image/png"},
			{Encoded: "dGhyZWU=", MimeType: "image/png"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	parts := gotReq.Contents[0].Parts
	if len(parts) != 4 {
		t.Fatalf("parts = %d, want 3 images + 1 prompt", len(parts))
	}
	if parts[3].Text == "" {
		t.Error("final part should be the default combine prompt")
	}
}

func TestUpscale_PromptNamesFactor(t *testing.T) {
	var gotReq apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Write([]byte(imageResponse("dXA=")))
	})

	_, err := client.Upscale(context.Background(), &models.UpscaleRequest{
		Source: models.SourceImage{Encoded: "c3Jj", MimeType: "image/png"},
		Factor: models.Upscale4x,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotReq.Contents[0].Parts[1].Text, "4x") {
		t.Errorf("upscale prompt = %q, want the factor in it", gotReq.Contents[0].Parts[1].Text)
	}
}

func TestChangeViewpoint_InvalidDirection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid direction should not reach the backend")
	})

	_, err := client.ChangeViewpoint(context.Background(), &models.ViewpointRequest{
		Source:    models.SourceImage{Encoded: "c3Jj"},
		Direction: "sideways",
	})
	if err == nil {
		t.Error("expected an error")
	}
}

func TestGenerateVideo_PollsToCompletion(t *testing.T) {
	origInterval := defaultPollInterval
	defaultPollInterval = 5 * time.Millisecond
	defer func() { defaultPollInterval = origInterval }()

	polls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "predictLongRunning") {
			w.Write([]byte(`{"name": "operations/job-1"}`))
			return
		}
		polls++
		if polls < 3 {
			w.Write([]byte(`{"name": "operations/job-1", "done": false}`))
			return
		}
		w.Write([]byte(`{
			"name": "operations/job-1",
			"done": true,
			"response": {"generateVideoResponse": {"generatedSamples": [{"video": {"uri": "https://cdn.example.com/v.mp4"}}]}}
		}`))
	})

	var updates []string
	resp, err := client.GenerateVideo(context.Background(), &models.VideoRequest{Prompt: "waves"}, func(s string) {
		updates = append(updates, s)
	})
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if resp.URL != "https://cdn.example.com/v.mp4" {
		t.Errorf("URL = %q", resp.URL)
	}
	if len(updates) == 0 {
		t.Error("expected progress updates while polling")
	}
}

func TestGenerateVideo_FailedPreconditionIsRefusal(t *testing.T) {
	origInterval := defaultPollInterval
	defaultPollInterval = 5 * time.Millisecond
	defer func() { defaultPollInterval = origInterval }()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "predictLongRunning") {
			w.Write([]byte(`{"name": "operations/job-1"}`))
			return
		}
		w.Write([]byte(`{"name": "operations/job-1", "done": true, "error": {"code": 400, "message": "this prompt violates the policy", "status": "FAILED_PRECONDITION"}}`))
	})

	_, err := client.GenerateVideo(context.Background(), &models.VideoRequest{Prompt: "waves"}, nil)
	if !models.IsRefusal(err) {
		t.Errorf("error = %v, want a refusal", err)
	}
}

func TestGenerateVideo_RequiresPromptOrImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty request should not reach the backend")
	})

	_, err := client.GenerateVideo(context.Background(), &models.VideoRequest{}, nil)
	if !errors.Is(err, models.ErrEmptyPrompt) {
		t.Errorf("error = %v, want %v", err, models.ErrEmptyPrompt)
	}
}
