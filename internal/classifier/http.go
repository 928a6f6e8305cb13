package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to a remote scoring service that hosts both models.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

type predictRequest struct {
	Text string `json:"text"`
}

type binaryResponse struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

type multilabelResponse struct {
	Scores map[string]float64 `json:"scores"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Binary     bool   `json:"binary_loaded"`
	Multilabel bool   `json:"multilabel_loaded"`
}

// NewHTTPClient creates a scoring-service client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) PredictBinary(ctx context.Context, text string) (BinaryPrediction, error) {
	var out binaryResponse
	if err := c.post(ctx, "/v1/predict/binary", predictRequest{Text: text}, &out); err != nil {
		return BinaryPrediction{}, err
	}
	return BinaryPrediction{Label: out.Label, Probability: out.Probability}, nil
}

func (c *HTTPClient) PredictMultilabel(ctx context.Context, text string) (map[string]float64, error) {
	var out multilabelResponse
	if err := c.post(ctx, "/v1/predict/multilabel", predictRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	if out.Scores == nil {
		return nil, errors.New("response missing scores")
	}
	return out.Scores, nil
}

// Health reports which models the remote service has loaded.
func (c *HTTPClient) Health(ctx context.Context) (binary, multilabel bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false, false, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, false, fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("health status %d", resp.StatusCode)
	}
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return false, false, fmt.Errorf("decode health: %w", err)
	}
	return h.Binary, h.Multilabel, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("post %s: status %d body=%q", path, resp.StatusCode, string(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
