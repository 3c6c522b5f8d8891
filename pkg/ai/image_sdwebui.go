package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"emoseum/pkg/domain"
)

// SDWebUIGenerator renders images through a Stable Diffusion WebUI compatible
// txt2img endpoint.
type SDWebUIGenerator struct {
	baseURL    string
	steps      int
	width      int
	height     int
	httpClient *http.Client
}

// NewSDWebUIGenerator builds an ImageGenerator against a SD-WebUI API.
// baseURL is the server root, e.g. "http://localhost:7860".
func NewSDWebUIGenerator(baseURL string, steps, width, height int) *SDWebUIGenerator {
	if steps <= 0 {
		steps = 28
	}
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	return &SDWebUIGenerator{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		steps:   steps,
		width:   width,
		height:  height,
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
}

type sdTxt2ImgRequest struct {
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type sdTxt2ImgResponse struct {
	Images []string `json:"images"`
}

// ImagePrompt renders the full txt2img prompt: the base prompt with the style
// profile folded in as trailing tags. This is the exact string sent to the
// image backend, so callers can validate it before generating.
func ImagePrompt(prompt string, style domain.StyleProfile) string {
	full := prompt
	if style.Style != "" {
		full += ", " + style.Style + " style"
	}
	if style.Palette != "" {
		full += ", " + style.Palette + " palette"
	}
	return full
}

// GenerateImage implements ImageGenerator. The style profile is folded into
// the prompt the way the WebUI expects (trailing style tags).
func (g *SDWebUIGenerator) GenerateImage(ctx context.Context, prompt string, style domain.StyleProfile) ([]byte, error) {
	body, err := json.Marshal(sdTxt2ImgRequest{
		Prompt: ImagePrompt(prompt, style),
		Steps:  g.steps,
		Width:  g.width,
		Height: g.height,
	})
	if err != nil {
		return nil, err
	}

	url := g.baseURL + "/sdapi/v1/txt2img"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image generation request: %w", domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("image generation backend %s: %w", resp.Status, domain.ErrServiceUnavailable)
	}
	var imgResp sdTxt2ImgResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return nil, fmt.Errorf("image generation decode: %w", domain.ErrServiceUnavailable)
	}
	if len(imgResp.Images) == 0 {
		return nil, fmt.Errorf("no image returned: %w", domain.ErrServiceUnavailable)
	}
	data, err := base64.StdEncoding.DecodeString(imgResp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("image generation payload: %w", domain.ErrServiceUnavailable)
	}
	return data, nil
}
