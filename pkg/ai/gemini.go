package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const providerGemini = "gemini"

// GeminiConfig defines configuration options for the Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// GeminiClient implements Client against the Gemini generative API.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiClient dials the Gemini API with the configured key.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, &Error{Provider: providerGemini, Code: CodeConfiguration, Err: err}
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/kurid3v/AVinci/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "ai.gemini").Logger(),
	}, nil
}

// Provider implements Client.
func (c *GeminiClient) Provider() string {
	return providerGemini
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate runs a single GenerateContent call.
func (c *GeminiClient) Generate(parent context.Context, req Request) (Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.cfg.Model
	}

	ctx, span := c.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", modelName),
		attribute.Int("parts", len(req.Parts)),
	))
	defer span.End()

	model := c.client.GenerativeModel(modelName)
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	parts := make([]genai.Part, 0, len(req.Parts)+1)
	for _, part := range req.Parts {
		parts = append(parts, genai.Blob{MIMEType: part.MIMEType, Data: part.Data})
	}
	parts = append(parts, genai.Text(req.Prompt))

	start := time.Now()
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		err = classifyGeminiError(err)
		observe(providerGemini, modelName, time.Since(start).Seconds(), err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.logger.Warn().Err(err).Str("model", modelName).Msg("generate content failed")
		return Response{}, err
	}

	text := responseText(resp)
	if text == "" {
		err := &Error{Provider: providerGemini, Code: CodeInvalidResponse, Err: errors.New("no text content returned")}
		observe(providerGemini, modelName, time.Since(start).Seconds(), err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return Response{}, err
	}
	observe(providerGemini, modelName, time.Since(start).Seconds(), nil)

	return Response{Text: text, Model: modelName, Provider: providerGemini}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(builder.String())
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			converted := toGenaiSchema(prop)
			converted.Nullable = !required[name]
			out.Properties[name] = converted
		}
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	return out
}

func genaiType(t Type) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeArray:
		return genai.TypeArray
	case TypeNumber:
		return genai.TypeNumber
	case TypeInteger:
		return genai.TypeInteger
	case TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &Error{Provider: providerGemini, Code: CodeInvalidResponse, Err: err}
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if httpCode := apiErr.HTTPCode(); httpCode > 0 {
			return &Error{Provider: providerGemini, Code: codeForStatus(httpCode), Status: httpCode, Err: err}
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return &Error{Provider: providerGemini, Code: codeForGRPC(st.Code()), Status: httpStatusForGRPC(st.Code()), Err: err}
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &Error{Provider: providerGemini, Code: codeForStatus(gErr.Code), Status: gErr.Code, Err: err}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return &Error{Provider: providerGemini, Code: codeForGRPC(st.Code()), Status: httpStatusForGRPC(st.Code()), Err: err}
	}

	return &Error{Provider: providerGemini, Code: CodeUnknown, Err: err}
}

func codeForGRPC(code codes.Code) ErrorCode {
	switch code {
	case codes.Unavailable:
		return CodeUnavailable
	case codes.Unauthenticated, codes.PermissionDenied:
		return CodeConfiguration
	default:
		return CodeUnknown
	}
}

func httpStatusForGRPC(code codes.Code) int {
	switch code {
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	default:
		return 0
	}
}
