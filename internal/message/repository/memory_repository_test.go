package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	messagedomain "maildigest/internal/message/domain"
)

func newMessage(providerID, subject, body string) *messagedomain.Message {
	return &messagedomain.Message{
		ProviderID: providerID,
		From:       "alice@example.com",
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func TestPutAssignsSequentialSeq(t *testing.T) {
	store := NewMemoryMessageStore()

	m1 := newMessage("p1", "first", "body one")
	m2 := newMessage("p2", "second", "body two")

	result, err := store.Put(m1)
	require.NoError(t, err)
	assert.Equal(t, messagedomain.PutInserted, result)
	assert.Equal(t, int64(1), m1.Seq)

	result, err = store.Put(m2)
	require.NoError(t, err)
	assert.Equal(t, messagedomain.PutInserted, result)
	assert.Equal(t, int64(2), m2.Seq)

	max, err := store.MaxSeq()
	require.NoError(t, err)
	assert.Equal(t, int64(2), max)
}

func TestPutDeduplicatesByProviderID(t *testing.T) {
	store := NewMemoryMessageStore()

	_, err := store.Put(newMessage("p1", "hello", "world"))
	require.NoError(t, err)

	// Same provider id, different content
	result, err := store.Put(newMessage("p1", "other subject", "other body"))
	require.NoError(t, err)
	assert.Equal(t, messagedomain.PutDuplicateIgnored, result)

	max, err := store.MaxSeq()
	require.NoError(t, err)
	assert.Equal(t, int64(1), max)
}

func TestPutDeduplicatesByContentHash(t *testing.T) {
	store := NewMemoryMessageStore()

	_, err := store.Put(newMessage("p1", "Quarterly Report", "numbers attached"))
	require.NoError(t, err)

	// Different provider id, same normalized content
	result, err := store.Put(newMessage("p2", "  quarterly   REPORT ", "numbers  attached"))
	require.NoError(t, err)
	assert.Equal(t, messagedomain.PutDuplicateIgnored, result)

	msgs, err := store.GetSince(0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestGetSinceOrderAndLimit(t *testing.T) {
	store := NewMemoryMessageStore()
	for i := 0; i < 5; i++ {
		_, err := store.Put(newMessage(
			string(rune('a'+i)),
			"subject "+string(rune('a'+i)),
			"body "+string(rune('a'+i)),
		))
		require.NoError(t, err)
	}

	msgs, err := store.GetSince(2, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, int64(4), msgs[1].Seq)

	rest, err := store.GetSince(4, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(5), rest[0].Seq)
}

func TestGetBySeq(t *testing.T) {
	store := NewMemoryMessageStore()
	m := newMessage("p1", "hello", "world")
	_, err := store.Put(m)
	require.NoError(t, err)

	got, err := store.GetBySeq(m.Seq)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Subject)

	missing, err := store.GetBySeq(42)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCursorAdvanceAndReset(t *testing.T) {
	store := NewMemoryMessageStore()

	cursor, err := store.LoadCursor()
	require.NoError(t, err)
	assert.Empty(t, cursor.Token)
	assert.Zero(t, cursor.UpToSeq)

	require.NoError(t, store.AdvanceCursor("history:123", 7))

	cursor, err = store.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, "history:123", cursor.Token)
	assert.Equal(t, int64(7), cursor.UpToSeq)

	require.NoError(t, store.ResetCursor())

	cursor, err = store.LoadCursor()
	require.NoError(t, err)
	assert.Empty(t, cursor.Token)
	assert.Zero(t, cursor.UpToSeq)
}

func TestContentHashNormalization(t *testing.T) {
	h1 := messagedomain.ComputeContentHash("Weekly Sync", "See you  Monday")
	h2 := messagedomain.ComputeContentHash("  weekly   sync ", "see you monday")
	h3 := messagedomain.ComputeContentHash("weekly sync", "see you tuesday")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
