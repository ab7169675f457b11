package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pybot-backend/internal/logger"
	"pybot-backend/internal/models"
	"pybot-backend/internal/repository"
)

type fakeGenerator struct {
	mu        sync.Mutex
	err       error
	reply     string
	calls     int
	lastTurns []models.Turn
	lastSys   string
}

func (f *fakeGenerator) Generate(ctx context.Context, systemInstruction string, turns []models.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.lastSys = systemInstruction
	f.lastTurns = append([]models.Turn(nil), turns...)
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "echo: " + turns[len(turns)-1].Text, nil
}

type failingStore struct {
	*repository.MemoryTranscriptRepo
	failAppendAfter int
	appends         int
}

func (s *failingStore) Append(ctx context.Context, sessionID string, turns ...models.Turn) (int, error) {
	s.appends++
	if s.appends > s.failAppendAfter {
		return 0, errors.New("store offline")
	}
	return s.MemoryTranscriptRepo.Append(ctx, sessionID, turns...)
}

func newTestHandler(gen Generator, maxTurns int) (*Handler, *repository.MemoryTranscriptRepo) {
	store := repository.NewMemoryTranscriptRepo(0)
	return NewHandler(store, gen, "be nice", maxTurns, logger.Discard()), store
}

func TestSubmit_Success(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "Hi! How can I help?"}
	h, store := newTestHandler(gen, 0)

	reply, err := h.Submit(ctx, "s1", "hello")
	require.NoError(t, err)
	require.Equal(t, "Hi! How can I help?", reply)

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []models.Turn{
		{Role: models.RoleUser, Text: "hello"},
		{Role: models.RoleModel, Text: "Hi! How can I help?"},
	}, turns)

	require.Equal(t, "be nice", gen.lastSys)
	require.Equal(t, []models.Turn{{Role: models.RoleUser, Text: "hello"}}, gen.lastTurns)
}

func TestSubmit_TwoCallsAlternate(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	h, _ := newTestHandler(gen, 0)

	_, err := h.Submit(ctx, "s1", "first")
	require.NoError(t, err)
	_, err = h.Submit(ctx, "s1", "second")
	require.NoError(t, err)

	turns, err := h.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleModel
		}
		require.Equal(t, want, turn.Role, "turn %d", i)
	}

	// The second call carries the whole transcript as context.
	require.Len(t, gen.lastTurns, 3)
}

func TestSubmit_UpstreamFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	h, store := newTestHandler(gen, 0)

	_, err := h.Submit(ctx, "s1", "hello")
	require.NoError(t, err)

	gen.err = errors.New("quota exceeded")
	_, err = h.Submit(ctx, "s1", "again")
	require.Error(t, err)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.EqualError(t, upstream.Err, "quota exceeded")

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "hello", turns[0].Text)
}

func TestSubmit_RollbackOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{err: context.Canceled}
	h, store := newTestHandler(gen, 0)
	cancel()

	_, err := h.Submit(ctx, "s1", "hello")
	require.ErrorIs(t, err, context.Canceled)

	turns, err := store.Turns(context.Background(), "s1")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestSubmit_ModelTurnStoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryTranscriptRepo: repository.NewMemoryTranscriptRepo(0), failAppendAfter: 1}
	h := NewHandler(store, &fakeGenerator{}, "", 0, logger.Discard())

	_, err := h.Submit(ctx, "s1", "hello")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestSubmit_Unavailable(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandler(nil, 0)

	require.False(t, h.Available())
	_, err := h.Submit(ctx, "s1", "hello")
	require.ErrorIs(t, err, ErrUnavailable)

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestSubmit_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(&fakeGenerator{}, 0)

	_, err := h.Submit(ctx, "alice", "hi from alice")
	require.NoError(t, err)
	_, err = h.Submit(ctx, "bob", "hi from bob")
	require.NoError(t, err)

	alice, err := h.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	require.Equal(t, "hi from alice", alice[0].Text)

	bob, err := h.History(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob, 2)
	require.Equal(t, "hi from bob", bob[0].Text)
}

func TestSubmit_ConcurrentSameSessionKeepsOrdering(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(&fakeGenerator{}, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Submit(ctx, "shared", fmt.Sprintf("msg %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := h.History(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, turns, 2*n)
	for i := 0; i < len(turns); i += 2 {
		require.Equal(t, models.RoleUser, turns[i].Role)
		require.Equal(t, models.RoleModel, turns[i+1].Role)
		require.Equal(t, "echo: "+turns[i].Text, turns[i+1].Text)
	}
	require.Zero(t, h.locks.len())
}

func TestSubmit_MaxTurnsWindow(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	h, store := newTestHandler(gen, 2)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := h.Submit(ctx, "s1", msg)
		require.NoError(t, err)
	}

	// Stored transcript is not pruned.
	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 6)

	// A window of 2 would open on a model turn, so it shrinks to the last user turn.
	require.Equal(t, []models.Turn{{Role: models.RoleUser, Text: "three"}}, gen.lastTurns)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(&fakeGenerator{}, 0)

	_, err := h.Submit(ctx, "s1", "hello")
	require.NoError(t, err)
	require.NoError(t, h.Reset(ctx, "s1"))

	turns, err := h.History(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, turns)
	require.Equal(t, "memory", h.StoreName())
}
