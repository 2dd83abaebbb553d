/**
 * Vision Client - Vision-Language Model Access
 *
 * Single client for both pipeline uses of the vision-language capability:
 * - verbatim transcription of a cropped bubble region
 * - discourse classification of a region given the full page image
 *
 * The service selects the actual model; this worker never hardcodes one.
 * Classification responses are free-form model text; structured-output
 * extraction happens in the processor, not here.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dougiefresh49/comic-reader/internal/logging"
)

// VisionClient handles communication with the vision-language service
type VisionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionRequest represents an image+prompt completion request
type VisionRequest struct {
	Image    string                 `json:"image"`  // Base64 encoded image
	Format   string                 `json:"format"` // "base64"
	Prompt   string                 `json:"prompt"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// VisionResponse represents the service response
type VisionResponse struct {
	Success bool       `json:"success"`
	Data    VisionData `json:"data"`
	Message string     `json:"message"`
}

// VisionData contains the model output and metadata
type VisionData struct {
	Text           string  `json:"text"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
	Confidence     float64 `json:"confidence,omitempty"`
}

// NewVisionClient creates a new vision-language client
func NewVisionClient(baseURL, apiKey string) *VisionClient {
	return &VisionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // vision calls can take time
		},
		logger: logging.NewLogger("VisionClient"),
	}
}

const transcribePrompt = "Transcribe the text in this image verbatim. " +
	"Preserve line breaks exactly as printed. " +
	"Return only the transcribed text with no commentary."

// Transcribe extracts verbatim text from a cropped region image.
func (c *VisionClient) Transcribe(ctx context.Context, cropData []byte) (string, error) {
	data, err := c.complete(ctx, "transcribe", cropData, transcribePrompt)
	if err != nil {
		return "", err
	}
	return data.Text, nil
}

// Classify sends the full page image plus a classification prompt and returns
// the raw model text.
func (c *VisionClient) Classify(ctx context.Context, pageImage []byte, prompt string) (string, error) {
	data, err := c.complete(ctx, "classify", pageImage, prompt)
	if err != nil {
		return "", err
	}
	return data.Text, nil
}

// complete performs one image+prompt call against the vision endpoint.
func (c *VisionClient) complete(ctx context.Context, kind string, imageData []byte, prompt string) (*VisionData, error) {
	req := &VisionRequest{
		Image:  base64.StdEncoding.EncodeToString(imageData),
		Format: "base64",
		Prompt: prompt,
		Metadata: map[string]interface{}{
			"source":    "comic-reader-worker",
			"timestamp": time.Now().Unix(),
		},
	}

	c.logger.Info("Requesting vision completion", "kind", kind, "imageSize", len(imageData))

	endpoint := fmt.Sprintf("%s/api/vision/complete", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "comic-reader-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("%s-%d", kind, time.Now().UnixNano()))
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to vision service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned error status %d: %s", resp.StatusCode, string(body))
	}

	var visionResp VisionResponse
	if err := json.Unmarshal(body, &visionResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !visionResp.Success {
		return nil, fmt.Errorf("vision operation failed: %s", visionResp.Message)
	}

	c.logger.Info("Vision completion done",
		"kind", kind,
		"modelUsed", visionResp.Data.ModelUsed,
		"textLength", len(visionResp.Data.Text),
		"processingTime", visionResp.Data.ProcessingTime)

	return &visionResp.Data, nil
}

// HealthCheck verifies the vision service is available
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
