package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCursor signals that the provider no longer accepts the cursor
// token (history truncation on the provider side). Distinct from transient
// failures: the caller must fall back to a bounded backfill.
var ErrInvalidCursor = errors.New("mailbox: cursor token invalid or expired")

// ErrAuth signals a credential failure. Not retryable here; credential
// refresh is an external concern.
var ErrAuth = errors.New("mailbox: authentication failed")

// Item is one provider message envelope, normalized to what the store needs.
type Item struct {
	ProviderID string
	From       string
	FromName   string
	Subject    string
	Body       string
	HTMLBody   string
	ReceivedAt time.Time
}

// Page is one fetch result. NextToken is the terminal token for this page:
// persisting all Items and then advancing the cursor to NextToken is always
// safe. HasMore tells the caller to fetch again immediately instead of
// sleeping until the next poll.
type Page struct {
	Items     []*Item
	NextToken string
	HasMore   bool
}

// Source is the mailbox collaborator. An empty cursorToken requests a bounded
// backfill (the implementation's configured window, e.g. the last N days);
// the backfill's final page carries a fresh incremental token so dedup in the
// store absorbs any overlap.
type Source interface {
	FetchPage(ctx context.Context, cursorToken string) (*Page, error)
}
