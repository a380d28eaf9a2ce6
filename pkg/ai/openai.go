package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	oaschema "github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const providerOpenAI = "openai"

// OpenAIConfig defines configuration options for the OpenAI client.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAIClient implements Client against the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIClient builds a new client using the provided configuration.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/kurid3v/AVinci/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "ai.openai").Logger(),
	}, nil
}

// Provider implements Client.
func (c *OpenAIClient) Provider() string {
	return providerOpenAI
}

// Generate sends the request to the chat completion endpoint.
func (c *OpenAIClient) Generate(parent context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	ctx, span := c.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", model),
		attribute.Int("parts", len(req.Parts)),
	))
	defer span.End()

	wrapped := req.Schema != nil && req.Schema.Type != TypeObject
	request := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  buildMessages(req),
	}
	if req.Temperature != nil {
		request.Temperature = *req.Temperature
	}
	if req.Schema != nil {
		schema := req.Schema
		if wrapped {
			schema = &Schema{Type: TypeObject, Properties: map[string]*Schema{"items": req.Schema}, Required: []string{"items"}}
		}
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "result",
				Schema: toOpenAIDefinition(schema),
			},
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		err = classifyOpenAIError(err)
		observe(providerOpenAI, model, time.Since(start).Seconds(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Str("model", model).Msg("chat completion failed")
		return Response{}, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := &Error{Provider: providerOpenAI, Code: CodeInvalidResponse, Err: errors.New("no content returned")}
		observe(providerOpenAI, model, time.Since(start).Seconds(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	observe(providerOpenAI, model, time.Since(start).Seconds(), nil)

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if wrapped {
		text = unwrapItems(text)
	}

	return Response{Text: text, Model: model, Provider: providerOpenAI}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}

	if len(req.Parts) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
	for _, part := range req.Parts {
		url := fmt.Sprintf("data:%s;base64,%s", part.MIMEType, base64.StdEncoding.EncodeToString(part.Data))
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func toOpenAIDefinition(s *Schema) *oaschema.Definition {
	if s == nil {
		return nil
	}

	def := &oaschema.Definition{
		Type:        openAIType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	if s.Items != nil {
		def.Items = toOpenAIDefinition(s.Items)
	}
	if s.Type == TypeObject {
		def.Properties = make(map[string]oaschema.Definition, len(s.Properties))
		for name, prop := range s.Properties {
			def.Properties[name] = *toOpenAIDefinition(prop)
		}
	}
	return def
}

func openAIType(t Type) oaschema.DataType {
	switch t {
	case TypeObject:
		return oaschema.Object
	case TypeArray:
		return oaschema.Array
	case TypeNumber:
		return oaschema.Number
	case TypeInteger:
		return oaschema.Integer
	case TypeBoolean:
		return oaschema.Boolean
	default:
		return oaschema.String
	}
}

// unwrapItems strips the {"items": ...} envelope used for non-object roots.
// Text that does not carry the envelope is returned unchanged.
func unwrapItems(text string) string {
	var envelope struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil || len(envelope.Items) == 0 {
		return text
	}
	return string(envelope.Items)
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: providerOpenAI, Code: codeForStatus(apiErr.HTTPStatusCode), Status: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Provider: providerOpenAI, Code: codeForStatus(reqErr.HTTPStatusCode), Status: reqErr.HTTPStatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	return &Error{Provider: providerOpenAI, Code: CodeUnknown, Err: err}
}
