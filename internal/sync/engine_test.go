package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	messagedomain "maildigest/internal/message/domain"
	messagerepo "maildigest/internal/message/repository"
	"maildigest/pkg/mailbox"
)

// fakeSource serves scripted pages keyed by cursor token. Empty token serves
// the backfill script.
type fakeSource struct {
	pages      map[string]*mailbox.Page
	errByToken map[string]error
	calls      []string
}

func (f *fakeSource) FetchPage(ctx context.Context, token string) (*mailbox.Page, error) {
	f.calls = append(f.calls, token)
	if err, ok := f.errByToken[token]; ok {
		// One-shot errors so recovery paths can be scripted
		delete(f.errByToken, token)
		return nil, err
	}
	page, ok := f.pages[token]
	if !ok {
		return &mailbox.Page{NextToken: token, HasMore: false}, nil
	}
	return page, nil
}

func item(providerID, subject string) *mailbox.Item {
	return &mailbox.Item{
		ProviderID: providerID,
		From:       "bob@example.com",
		Subject:    subject,
		Body:       "body of " + subject,
		ReceivedAt: time.Now(),
	}
}

func TestRunPassStoresPagesAndAdvancesCursor(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	source := &fakeSource{pages: map[string]*mailbox.Page{
		"": {
			Items:     []*mailbox.Item{item("m1", "one"), item("m2", "two")},
			NextToken: "t1",
			HasMore:   true,
		},
		"t1": {
			Items:     []*mailbox.Item{item("m3", "three")},
			NextToken: "t2",
			HasMore:   false,
		},
	}}

	engine := NewEngine(store, source, time.Minute, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	max, err := store.MaxSeq()
	require.NoError(t, err)
	assert.Equal(t, int64(3), max)

	cursor, err := store.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, "t2", cursor.Token)
	assert.Equal(t, int64(3), cursor.UpToSeq)
}

func TestRunPassIsIdempotentAcrossReplays(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	page := &mailbox.Page{
		Items:     []*mailbox.Item{item("m1", "one"), item("m2", "two")},
		NextToken: "t1",
		HasMore:   false,
	}
	source := &fakeSource{pages: map[string]*mailbox.Page{"": page, "t1": page}}

	engine := NewEngine(store, source, time.Minute, nil)
	require.NoError(t, engine.RunPass(context.Background()))
	// Provider replays the same page on the next poll
	require.NoError(t, engine.RunPass(context.Background()))

	max, err := store.MaxSeq()
	require.NoError(t, err)
	assert.Equal(t, int64(2), max)
}

func TestRunPassRecoversFromCrashBetweenStoreAndAdvance(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()

	// Simulate a process that stored the page but died before advancing:
	// messages exist, cursor still empty.
	_, err := store.Put(&messagedomain.Message{ProviderID: "m1", Subject: "one", Body: "body of one", ReceivedAt: time.Now()})
	require.NoError(t, err)

	source := &fakeSource{pages: map[string]*mailbox.Page{
		"": {
			Items:     []*mailbox.Item{item("m1", "one"), item("m2", "two")},
			NextToken: "t1",
			HasMore:   false,
		},
	}}

	engine := NewEngine(store, source, time.Minute, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	msgs, err := store.GetSince(0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	cursor, err := store.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, "t1", cursor.Token)
}

func TestRunPassResyncsOnInvalidCursor(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	require.NoError(t, store.AdvanceCursor("history:expired", 0))

	source := &fakeSource{
		errByToken: map[string]error{
			"history:expired": fmt.Errorf("expired: %w", mailbox.ErrInvalidCursor),
		},
		pages: map[string]*mailbox.Page{
			"": {
				Items:     []*mailbox.Item{item("m1", "one")},
				NextToken: "history:fresh",
				HasMore:   false,
			},
		},
	}

	engine := NewEngine(store, source, time.Minute, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	// Rejected token triggered a reset and a bounded backfill from scratch
	assert.Equal(t, []string{"history:expired", ""}, source.calls)

	cursor, err := store.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, "history:fresh", cursor.Token)
}

func TestRunPassSurfacesAuthAsFatal(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	source := &fakeSource{
		errByToken: map[string]error{
			"": fmt.Errorf("credentials revoked: %w", mailbox.ErrAuth),
		},
	}

	engine := NewEngine(store, source, time.Minute, nil)
	err := engine.RunPass(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, mailbox.ErrAuth)
}

func TestRunPassNotifiesAfterNewMessages(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	source := &fakeSource{pages: map[string]*mailbox.Page{
		"": {
			Items:     []*mailbox.Item{item("m1", "one")},
			NextToken: "t1",
			HasMore:   false,
		},
		"t1": {NextToken: "t1", HasMore: false},
	}}

	notify := make(chan struct{}, 1)
	engine := NewEngine(store, source, time.Minute, notify)

	require.NoError(t, engine.RunPass(context.Background()))
	select {
	case <-notify:
	default:
		t.Fatal("expected a notify signal after new messages")
	}

	// An empty pass stays silent
	require.NoError(t, engine.RunPass(context.Background()))
	select {
	case <-notify:
		t.Fatal("unexpected notify signal on an empty pass")
	default:
	}
}
