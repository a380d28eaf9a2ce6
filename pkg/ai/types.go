package ai

import "context"

// Part is an inline binary attachment sent alongside the text prompt.
type Part struct {
	MIMEType string
	Data     []byte
}

// Request describes a single generation call.
type Request struct {
	Model             string
	Prompt            string
	Parts             []Part
	SystemInstruction string
	Schema            *Schema
	Temperature       *float32
}

// Response carries the raw text produced by the model.
type Response struct {
	Text     string
	Model    string
	Provider string
}

// Client is implemented by every LLM provider adapter.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Provider() string
}

// Float32 returns a pointer to v, handy for optional temperatures.
func Float32(v float32) *float32 {
	return &v
}
