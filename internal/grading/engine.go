package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	applogger "github.com/kurid3v/AVinci/internal/logger"
	"github.com/kurid3v/AVinci/pkg/ai"
)

// Config tunes the grading engine.
type Config struct {
	Model       string
	Temperature float32
	Retry       ai.RetryPolicy
	Logger      zerolog.Logger
}

// Engine builds prompts, calls the LLM through the retry governor and turns
// its output into validated, typed results.
type Engine struct {
	client    ai.Client
	cfg       Config
	schemas   map[string]*ai.Schema
	validator map[string]*jsonschema.Schema
	sanitizer *Sanitizer
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewEngine compiles the output contracts and returns an engine bound to
// client. A nil client is allowed: every AI operation then fails with
// ErrConfiguration.
func NewEngine(client ai.Client, cfg Config) (*Engine, error) {
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}

	schemas := contracts()
	validators := make(map[string]*jsonschema.Schema, len(schemas))
	for name, schema := range schemas {
		compiled, err := schema.Compile(name)
		if err != nil {
			return nil, err
		}
		validators[name] = compiled
	}

	return &Engine{
		client:    client,
		cfg:       cfg,
		schemas:   schemas,
		validator: validators,
		sanitizer: NewSanitizer(),
		tracer:    otel.Tracer("github.com/kurid3v/AVinci/internal/grading"),
		logger:    cfg.Logger.With().Str("component", "grading_engine").Logger(),
	}, nil
}

// Configured reports whether an LLM client is available.
func (e *Engine) Configured() bool {
	return e.client != nil
}

// Sanitizer exposes the text sanitiser shared with teacher edits.
func (e *Engine) Sanitizer() *Sanitizer {
	return e.sanitizer
}

type invocation struct {
	contract string
	system   string
	prompt   string
	parts    []ai.Part
	// normalize rewrites the decoded document before validation.
	normalize func(any) any
}

func (e *Engine) log(ctx context.Context) *zerolog.Logger {
	logger := applogger.ForContext(ctx, e.logger)
	return &logger
}

func invoke[T any](ctx context.Context, e *Engine, call invocation) (T, error) {
	var zero T

	raw, err := e.generate(ctx, call.system, call.prompt, call.parts, e.schemas[call.contract], e.cfg.Retry)
	if err != nil {
		return zero, err
	}

	payload, ok := ai.ExtractJSON(raw)
	if !ok {
		e.log(ctx).Warn().Str("contract", call.contract).Int("length", len(raw)).Msg("no json found in model output")
		return zero, ErrMalformedResponse
	}

	var document any
	if err := json.Unmarshal([]byte(payload), &document); err != nil {
		return zero, malformed("decode %s: %v", call.contract, err)
	}
	if call.normalize != nil {
		document = call.normalize(document)
	}

	if validator := e.validator[call.contract]; validator != nil {
		if err := validator.Validate(document); err != nil {
			e.log(ctx).Warn().Err(err).Str("contract", call.contract).Msg("model output violates contract")
			return zero, malformed("%s contract: %v", call.contract, err)
		}
	}

	normalized, err := json.Marshal(document)
	if err != nil {
		return zero, malformed("encode %s: %v", call.contract, err)
	}

	var out T
	if err := json.Unmarshal(normalized, &out); err != nil {
		return zero, malformed("decode %s: %v", call.contract, err)
	}
	return out, nil
}

func (e *Engine) generate(ctx context.Context, system, prompt string, parts []ai.Part, schema *ai.Schema, policy ai.RetryPolicy) (string, error) {
	if e.client == nil {
		return "", ErrConfiguration
	}

	request := ai.Request{
		Model:             e.cfg.Model,
		Prompt:            prompt,
		Parts:             parts,
		SystemInstruction: system,
		Schema:            schema,
		Temperature:       ai.Float32(e.cfg.Temperature),
	}

	resp, err := ai.Retry(ctx, policy, func(ctx context.Context) (ai.Response, error) {
		return e.client.Generate(ctx, request)
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ImageToText transcribes a scanned page.
func (e *Engine) ImageToText(ctx context.Context, mimeType string, data []byte) (text string, err error) {
	ctx, span := e.startSpan(ctx, "grading.image_to_text", attribute.String("mime", mimeType))
	defer func() { endSpan(span, err) }()

	if len(data) == 0 {
		return "", invalidInput("image is empty")
	}

	raw, err := e.generate(ctx, imageToTextSystemInstruction, "Transcribe the attached page.",
		[]ai.Part{{MIMEType: mimeType, Data: data}}, nil, e.cfg.Retry)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(raw)
	if text == "" {
		return "", malformed("empty transcription")
	}
	return text, nil
}

// ConnectionStatus reports the outcome of a provider round trip.
type ConnectionStatus struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// TestConnection sends a tiny prompt with a single, short retry.
func (e *Engine) TestConnection(ctx context.Context) ConnectionStatus {
	if e.client == nil {
		return ConnectionStatus{Success: false, Message: ErrConfiguration.Error()}
	}

	policy := ai.RetryPolicy{MaxRetries: 1, InitialDelay: time.Second, CallTimeout: e.cfg.Retry.CallTimeout}
	start := time.Now()
	_, err := e.generate(ctx, "", "Ping", nil, nil, policy)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		e.log(ctx).Warn().Err(err).Msg("connection test failed")
		return ConnectionStatus{Success: false, Message: err.Error(), Provider: e.client.Provider(), LatencyMs: latency}
	}

	return ConnectionStatus{
		Success:   true,
		Message:   fmt.Sprintf("connected to %s", e.client.Provider()),
		Provider:  e.client.Provider(),
		LatencyMs: latency,
	}
}
