package ai

import (
	"fmt"
	"strings"
)

const maxBodyChars = 1500

// buildDigestPrompt renders one prompt shared by all providers so switching
// providers does not change the digest voice.
func buildDigestPrompt(req DigestRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are an email digest writer. Summarize the emails below into a weekly digest for %s.

GUIDELINES:
- Open with a one-paragraph overview of the week.
- Then group related emails under short bold headings.
- For each group, mention senders and any deadlines or action items.
- Skip promotional or automated emails unless they contain a deadline.
- Plain text with simple formatting, no HTML.
`, displayName(req))

	if req.Interests != "" {
		fmt.Fprintf(&sb, "- The reader cares most about: %s. Lead with those topics.\n", req.Interests)
	}
	fmt.Fprintf(&sb, "\nPERIOD: %s to %s\n\nEMAILS:\n",
		req.PeriodStart.Format("Jan 2, 2006"), req.PeriodEnd.Format("Jan 2, 2006"))

	for i, e := range req.Emails {
		body := e.Body
		if len(body) > maxBodyChars {
			body = body[:maxBodyChars] + "..."
		}
		fmt.Fprintf(&sb, "--- Email %d ---\nFrom: %s\nDate: %s\nSubject: %s\n%s\n\n",
			i+1, e.From, e.ReceivedAt.Format("Mon Jan 2 15:04"), e.Subject, body)
	}

	sb.WriteString("DIGEST:")
	return sb.String()
}

func displayName(req DigestRequest) string {
	if req.SubscriberName != "" {
		return req.SubscriberName
	}
	return "the reader"
}
