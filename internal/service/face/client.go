package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Result is the collaborator's verdict on an uploaded photo.
type Result struct {
	FaceID     string
	Duplicate  bool
	Similarity float64
}

// Client talks to the face-recognition collaborator: verify first, register
// when the face is new. All failures are reported as errors; callers decide
// how to degrade.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the face server, or nil when no server is
// configured.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type verifyResponse struct {
	IsRegistered bool    `json:"is_registered"`
	VisitorID    string  `json:"visitor_id"`
	Similarity   float64 `json:"similarity"`
	Error        string  `json:"error"`
}

type registerResponse struct {
	Status    string `json:"status"`
	VisitorID string `json:"visitor_id"`
	Error     string `json:"error"`
}

// Identify checks the photo against the face database. A registered match is
// a duplicate visitor; an unknown face is registered under the session id.
func (c *Client) Identify(ctx context.Context, imagePath, sessionID string) (Result, error) {
	image, err := encodeImage(imagePath)
	if err != nil {
		return Result{}, err
	}

	var verdict verifyResponse
	if err := c.post(ctx, "/verify", map[string]interface{}{"image": image}, &verdict); err != nil {
		return Result{}, err
	}

	if verdict.IsRegistered {
		return Result{FaceID: verdict.VisitorID, Duplicate: true, Similarity: verdict.Similarity}, nil
	}

	var reg registerResponse
	payload := map[string]interface{}{"image": image, "uuid": sessionID}
	if err := c.post(ctx, "/register", payload, &reg); err != nil {
		return Result{}, err
	}
	if reg.Status != "success" {
		return Result{}, fmt.Errorf("face register failed: %s", reg.Error)
	}

	return Result{FaceID: reg.VisitorID, Similarity: verdict.Similarity}, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("face server %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("face server %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
