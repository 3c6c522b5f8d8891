package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"emoseum/pkg/domain"
)

// HTTPTrainer submits LoRA fine-tuning jobs to the training service.
type HTTPTrainer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPTrainer builds a Trainer against the training service API.
func NewHTTPTrainer(baseURL, apiKey string) *HTTPTrainer {
	return &HTTPTrainer{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type trainRequest struct {
	UserID     string `json:"userId"`
	DatasetRef string `json:"datasetRef"`
}

type trainResponse struct {
	JobID string `json:"jobId"`
	Error string `json:"error,omitempty"`
}

// SubmitTrainingJob implements Trainer. A 422 from the service means the
// dataset failed validation and maps to ErrInsufficientData.
func (t *HTTPTrainer) SubmitTrainingJob(ctx context.Context, userID, datasetRef string) (string, error) {
	body, err := json.Marshal(trainRequest{UserID: userID, DatasetRef: datasetRef})
	if err != nil {
		return "", err
	}
	url := t.baseURL + "/v1/training/jobs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("training submit request: %w", domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()
	return decodeSubmitResponse(resp)
}

func decodeSubmitResponse(resp *http.Response) (string, error) {
	var out trainResponse
	if resp.StatusCode == http.StatusUnprocessableEntity {
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return "", fmt.Errorf("training dataset rejected (%s): %w", out.Error, domain.ErrInsufficientData)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("training service %s: %w", resp.Status, domain.ErrServiceUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("training submit decode: %w", domain.ErrServiceUnavailable)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("training service returned no job id: %w", domain.ErrServiceUnavailable)
	}
	return out.JobID, nil
}

// Training job terminal states reported by the service.
const (
	TrainingStateRunning   = "running"
	TrainingStateSucceeded = "succeeded"
	TrainingStateFailed    = "failed"
)

type trainStatusResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// TrainingStatus fetches the state of a submitted job. The worker polls this
// until the job reaches a terminal state.
func (t *HTTPTrainer) TrainingStatus(ctx context.Context, jobID string) (string, string, error) {
	url := t.baseURL + "/v1/training/jobs/" + jobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("training status request: %w", domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("training service %s: %w", resp.Status, domain.ErrServiceUnavailable)
	}
	var out trainStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("training status decode: %w", domain.ErrServiceUnavailable)
	}
	return out.State, out.Error, nil
}
