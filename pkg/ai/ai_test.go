package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"emoseum/pkg/domain"
)

func chatServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestGenerateText(t *testing.T) {
	srv := chatServer(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": "  a quiet harbor at dusk  "}},
		},
	})
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model")
	text, err := g.GenerateText(context.Background(), GenerationContext{
		Diary: "long day", Stage: domain.StageReflection, CopingStyle: domain.CopingBalanced,
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "a quiet harbor at dusk" {
		t.Errorf("text = %q", text)
	}
}

func TestGenerateTextBackendDown(t *testing.T) {
	srv := chatServer(t, http.StatusBadGateway, map[string]string{})
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model")
	if _, err := g.GenerateText(context.Background(), GenerationContext{Diary: "x"}); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestGenerateTextBadRequest(t *testing.T) {
	srv := chatServer(t, http.StatusBadRequest, map[string]any{
		"error": map[string]string{"message": "context too long"},
	})
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1", "", "test-model")
	if _, err := g.GenerateText(context.Background(), GenerationContext{Diary: "x"}); !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("err = %v, want ErrInvalidContext", err)
	}
}

func TestGenerateTextMissingModel(t *testing.T) {
	g := NewOpenAICompatGenerator("http://localhost:1/v1", "", "")
	if _, err := g.GenerateText(context.Background(), GenerationContext{Diary: "x"}); !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("err = %v, want ErrInvalidContext", err)
	}
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Prompt
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString(png)},
		})
	}))
	defer srv.Close()

	g := NewSDWebUIGenerator(srv.URL, 0, 0, 0)
	data, err := g.GenerateImage(context.Background(), "a quiet harbor", domain.StyleProfile{Style: "watercolor", Palette: "warm"})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("decoded bytes = %v", data)
	}
	if gotPrompt != "a quiet harbor, watercolor style, warm palette" {
		t.Errorf("prompt = %q", gotPrompt)
	}
}

func TestGenerateImageEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"images": []string{}})
	}))
	defer srv.Close()

	g := NewSDWebUIGenerator(srv.URL, 0, 0, 0)
	if _, err := g.GenerateImage(context.Background(), "x", domain.StyleProfile{}); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestSubmitTrainingJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/training/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "remote-1"})
	}))
	defer srv.Close()

	tr := NewHTTPTrainer(srv.URL, "")
	jobID, err := tr.SubmitTrainingJob(context.Background(), "u1", "datasets/u1/abc")
	if err != nil {
		t.Fatalf("SubmitTrainingJob: %v", err)
	}
	if jobID != "remote-1" {
		t.Errorf("jobID = %q", jobID)
	}
}

func TestSubmitTrainingJobInsufficientData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "dataset too small"})
	}))
	defer srv.Close()

	tr := NewHTTPTrainer(srv.URL, "")
	if _, err := tr.SubmitTrainingJob(context.Background(), "u1", "ref"); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestTrainingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/training/jobs/remote-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"state": TrainingStateFailed, "error": "loss diverged"})
	}))
	defer srv.Close()

	tr := NewHTTPTrainer(srv.URL, "")
	state, reason, err := tr.TrainingStatus(context.Background(), "remote-1")
	if err != nil {
		t.Fatalf("TrainingStatus: %v", err)
	}
	if state != TrainingStateFailed || reason != "loss diverged" {
		t.Errorf("state = %q reason = %q", state, reason)
	}
}
