package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote calls an inference endpoint that serves the original model.
//
// Request:  {"instances": [[pH, pCO2, pO2, HCO3, SaO2]]}
// Response: {"predictions": [label]}
type Remote struct {
	url        string
	httpClient *http.Client
}

type remoteRequest struct {
	Instances [][]float64 `json:"instances"`
}

type remoteResponse struct {
	Predictions []int `json:"predictions"`
}

// ErrUpstream marks failures of the remote endpoint itself, as opposed to
// a bad input vector.
var ErrUpstream = errors.New("inference endpoint failed")

// NewRemote creates a client for the endpoint at url.
func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *Remote) Version() string { return "remote " + r.url }

// Predict implements Predictor.
func (r *Remote) Predict(ctx context.Context, v Vector) (Label, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}

	body, err := json.Marshal(remoteRequest{Instances: [][]float64{v}})
	if err != nil {
		return 0, fmt.Errorf("encode inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %w", ErrUpstream, err)
	}
	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("%w: expected 1 prediction, got %d", ErrUpstream, len(out.Predictions))
	}
	return Label(out.Predictions[0]), nil
}
