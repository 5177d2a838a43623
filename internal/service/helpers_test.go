package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
	"github.com/tagmarkapp/tagmark-server/internal/store/memory"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

var errInjected = errors.New("injected store failure")

// faultyStore fails selected operations on demand.
type faultyStore struct {
	*memory.Store

	mu sync.Mutex
	// passSaves batch writes succeed before the next failSaves fail.
	passSaves  int
	failSaves  int
	failCounts int
}

func (s *faultyStore) SaveBookmarks(ctx context.Context, bs []*domain.Bookmark) error {
	s.mu.Lock()
	var fail bool
	switch {
	case s.failSaves > 0 && s.passSaves > 0:
		s.passSaves--
	case s.failSaves > 0:
		s.failSaves--
		fail = true
	}
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.Store.SaveBookmarks(ctx, bs)
}

func (s *faultyStore) SaveBookmark(ctx context.Context, b *domain.Bookmark) error {
	return s.SaveBookmarks(ctx, []*domain.Bookmark{b})
}

func (s *faultyStore) CountBookmarks(ctx context.Context, f store.BookmarkFilter) (int, error) {
	s.mu.Lock()
	fail := s.failCounts > 0
	if fail {
		s.failCounts--
	}
	s.mu.Unlock()
	if fail {
		return 0, errInjected
	}
	return s.Store.CountBookmarks(ctx, f)
}

type fixture struct {
	store   *faultyStore
	queue   *taskqueue.Queue
	ledger  *TagLedger
	service *BookmarkService
	clock   time.Time
}

func newFixture(t *testing.T, cfg taskqueue.Config) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := &faultyStore{Store: memory.New()}
	q := taskqueue.New(s, cfg, logger)
	ledger := NewTagLedger(s, q, logger)

	f := &fixture{
		store:  s,
		queue:  q,
		ledger: ledger,
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.service = NewBookmarkService(s, ledger, nil, DefaultPageSize, logger)
	// Each bookmark is one second newer than the previous one.
	f.service.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) drain(t *testing.T) int {
	t.Helper()
	n, err := f.queue.RunPending(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) tagCount(t *testing.T, name string) int {
	t.Helper()
	tag, err := f.store.GetTag(context.Background(), name)
	if errors.Is(err, store.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	return tag.Count
}

func (f *fixture) mustCreate(t *testing.T, url string, tags ...string) *domain.Bookmark {
	t.Helper()
	b, err := f.service.Create(context.Background(), domain.BookmarkInput{URL: url, Tags: tags})
	require.NoError(t, err)
	return b
}
