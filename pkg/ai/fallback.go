package ai

import (
	"context"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// FallbackService tries the primary provider first and falls back to the
// secondary on connection or quota errors. Hard failures (bad prompt, empty
// response) are not retried on the other provider.
type FallbackService struct {
	primary   SummarizerService
	secondary SummarizerService
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(primary, secondary SummarizerService) *FallbackService {
	return &FallbackService{primary: primary, secondary: secondary}
}

// SummarizeDigest implements SummarizerService
func (f *FallbackService) SummarizeDigest(ctx context.Context, req DigestRequest) (string, error) {
	content, err := f.primary.SummarizeDigest(ctx, req)
	if err == nil {
		return content, nil
	}
	if !isConnectionError(err) && !isQuotaError(err) {
		return "", err
	}
	logrus.Warnf("[AI] primary provider unavailable, falling back: %v", err)
	return f.secondary.SummarizeDigest(ctx, req)
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(net.Error); ok {
		return true
	}
	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
