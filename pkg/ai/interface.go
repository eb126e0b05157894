package ai

import (
	"context"
	"time"
)

// DigestEmail is one message handed to the summarizer.
type DigestEmail struct {
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// DigestRequest carries everything the summarizer needs for one digest.
type DigestRequest struct {
	SubscriberName string
	Interests      string // free-form subscriber context, may be empty
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Emails         []DigestEmail
}

// SummarizerService is the interface for AI digest generation
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type SummarizerService interface {
	SummarizeDigest(ctx context.Context, req DigestRequest) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
