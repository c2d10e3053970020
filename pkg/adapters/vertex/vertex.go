package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// DefaultGeminiModel is the publisher model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Config locates the Vertex AI resources.
type Config struct {
	Project  string
	Location string

	// EndpointID is the deployed MedGemma endpoint, for the endpoint gateway.
	EndpointID string

	// Model is the Gemini publisher model, for the Gemini gateway.
	Model string

	// APIEndpoint overrides the service URL (dedicated endpoints, tests).
	APIEndpoint string
}

func (c Config) validate() error {
	if c.Project == "" {
		return fmt.Errorf("vertex: project is required (GOOGLE_CLOUD_PROJECT)")
	}
	if c.Location == "" {
		return fmt.Errorf("vertex: location is required (GOOGLE_CLOUD_LOCATION)")
	}
	return nil
}

func (c Config) clientOptions(extra []option.ClientOption) []option.ClientOption {
	opts := make([]option.ClientOption, 0, len(extra)+1)
	switch {
	case c.APIEndpoint != "":
		opts = append(opts, option.WithEndpoint(c.APIEndpoint))
	case c.Location != "global":
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com/", c.Location)))
	}
	return append(opts, extra...)
}

// EndpointGateway calls a model deployed on a Vertex AI endpoint through
// the predict API, as MedGemma is served.
type EndpointGateway struct {
	svc      *aiplatform.Service
	resource string
	logger   *slog.Logger
}

// NewEndpointGateway connects to the endpoint described by cfg.
func NewEndpointGateway(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*EndpointGateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.EndpointID == "" {
		return nil, fmt.Errorf("vertex: endpoint id is required (MEDGEMMA_ENDPOINT_ID)")
	}
	svc, err := aiplatform.NewService(ctx, cfg.clientOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex ai client: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EndpointGateway{
		svc:      svc,
		resource: fmt.Sprintf("projects/%s/locations/%s/endpoints/%s", cfg.Project, cfg.Location, cfg.EndpointID),
		logger:   logger,
	}, nil
}

// Complete implements ports.Gateway. The endpoint takes a single raw prompt,
// so the system prompt is prepended to it.
func (g *EndpointGateway) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + " " + prompt
	}

	instance := map[string]interface{}{
		"prompt":       prompt,
		"temperature":  req.Temperature,
		"raw_response": true,
	}
	if req.MaxTokens > 0 {
		instance["max_tokens"] = req.MaxTokens
	}

	g.logger.DebugContext(ctx, "vertex predict", "endpoint", g.resource)
	resp, err := g.svc.Projects.Locations.Endpoints.Predict(g.resource, &aiplatform.GoogleCloudAiplatformV1PredictRequest{
		Instances: []interface{}{instance},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vertex predict failed: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return "", fmt.Errorf("vertex predict returned no predictions")
	}
	return predictionText(resp.Predictions[0])
}

// predictionText extracts text from the shapes endpoints return: a bare string,
// or an object carrying the text under a well-known key.
func predictionText(p interface{}) (string, error) {
	switch v := p.(type) {
	case string:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"content", "text", "generated_text", "output"} {
			if s, ok := v[key].(string); ok {
				return s, nil
			}
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("vertex prediction not decodable: %w", err)
	}
	return string(b), nil
}

// GeminiGateway calls a Gemini publisher model through generateContent.
type GeminiGateway struct {
	svc    *aiplatform.Service
	model  string
	logger *slog.Logger
}

// NewGeminiGateway connects to the Gemini model described by cfg.
func NewGeminiGateway(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*GeminiGateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	svc, err := aiplatform.NewService(ctx, cfg.clientOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex ai client: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GeminiGateway{
		svc:    svc,
		model:  fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", cfg.Project, cfg.Location, cfg.Model),
		logger: logger,
	}, nil
}

// Complete implements ports.Gateway.
func (g *GeminiGateway) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	contents := make([]*aiplatform.GoogleCloudAiplatformV1Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == domain.RoleAI {
			role = "model"
		}
		contents = append(contents, textContent(role, m.Content))
	}
	contents = append(contents, textContent("user", req.Prompt))

	genReq := &aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
		Contents: contents,
		GenerationConfig: &aiplatform.GoogleCloudAiplatformV1GenerationConfig{
			Temperature:     float64(req.Temperature),
			MaxOutputTokens: int64(req.MaxTokens),
			ForceSendFields: []string{"Temperature"},
		},
	}
	if req.SystemPrompt != "" {
		genReq.SystemInstruction = textContent("", req.SystemPrompt)
	}

	g.logger.DebugContext(ctx, "vertex generateContent", "model", g.model)
	resp, err := g.svc.Projects.Locations.Publishers.Models.GenerateContent(g.model, genReq).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vertex generateContent failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("vertex generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func textContent(role, text string) *aiplatform.GoogleCloudAiplatformV1Content {
	return &aiplatform.GoogleCloudAiplatformV1Content{
		Role:  role,
		Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: text}},
	}
}
