package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDigestPromptIncludesEmailsAndInterests(t *testing.T) {
	req := DigestRequest{
		SubscriberName: "Dana",
		Interests:      "security, infrastructure",
		PeriodStart:    time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
		Emails: []DigestEmail{
			{From: "ops@example.com", Subject: "Cert rotation", Body: "certs expire friday", ReceivedAt: time.Date(2026, 8, 18, 9, 0, 0, 0, time.UTC)},
			{From: "hr@example.com", Subject: "Office closed", Body: "holiday monday", ReceivedAt: time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)},
		},
	}

	prompt := buildDigestPrompt(req)

	assert.Contains(t, prompt, "Dana")
	assert.Contains(t, prompt, "security, infrastructure")
	assert.Contains(t, prompt, "Cert rotation")
	assert.Contains(t, prompt, "Office closed")
	assert.Contains(t, prompt, "Aug 17, 2026")
	assert.Contains(t, prompt, "Aug 23, 2026")
}

func TestBuildDigestPromptTruncatesLongBodies(t *testing.T) {
	req := DigestRequest{
		Emails: []DigestEmail{
			{From: "a@example.com", Subject: "big", Body: strings.Repeat("x", 5000)},
		},
	}

	prompt := buildDigestPrompt(req)
	assert.Contains(t, prompt, "the reader")
	assert.Less(t, len(prompt), 3000)
	assert.Contains(t, prompt, "...")
}
