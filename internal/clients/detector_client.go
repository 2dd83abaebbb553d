/**
 * Detector Client - Speech Bubble Region Detection
 *
 * Talks to the region-detection endpoint: base64 page image in, center-based
 * candidate boxes with confidence out. The endpoint is a black box; this
 * client only normalizes its wire format. Conversion to top-left-origin
 * pixel boxes happens at ingestion in the processor.
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

// DetectorClient handles communication with the region-detection service
type DetectorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// DetectRequest represents a request to detect text regions on a page image
type DetectRequest struct {
	Image    string                 `json:"image"`  // Base64 encoded image
	Format   string                 `json:"format"` // "base64"
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DetectResponse represents the detection service response
type DetectResponse struct {
	Success bool       `json:"success"`
	Data    DetectData `json:"data"`
	Message string     `json:"message"`
}

// DetectData contains the detected regions and model metadata
type DetectData struct {
	Detections     []WireDetection `json:"detections"`
	ModelUsed      string          `json:"modelUsed"`
	ProcessingTime int64           `json:"processingTime"` // milliseconds
}

// WireDetection is a single detection in the service's center-origin format
type WireDetection struct {
	XCenter    float64 `json:"x_center"`
	YCenter    float64 `json:"y_center"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class,omitempty"`
}

// NewDetectorClient creates a new detector client
func NewDetectorClient(baseURL string) *DetectorClient {
	return &DetectorClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger("DetectorClient"),
	}
}

// DetectRegions sends a page image to the detection endpoint and returns the
// raw center-origin detections.
func (c *DetectorClient) DetectRegions(ctx context.Context, imageData []byte) ([]WireDetection, error) {
	req := &DetectRequest{
		Image:  base64.StdEncoding.EncodeToString(imageData),
		Format: "base64",
	}

	c.logger.Info("Requesting region detection", "imageSize", len(imageData))

	endpoint := fmt.Sprintf("%s/api/detect", c.baseURL)

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
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("detect-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to detector failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned error status %d: %s", resp.StatusCode, string(body))
	}

	var detectResp DetectResponse
	if err := json.Unmarshal(body, &detectResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !detectResp.Success {
		return nil, fmt.Errorf("detector operation failed: %s", detectResp.Message)
	}

	c.logger.Info("Region detection complete",
		"detections", len(detectResp.Data.Detections),
		"modelUsed", detectResp.Data.ModelUsed,
		"processingTime", detectResp.Data.ProcessingTime)

	return detectResp.Data.Detections, nil
}

// HealthCheck verifies the detection service is available
func (c *DetectorClient) HealthCheck(ctx context.Context) error {
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
