package mdns

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu         sync.Mutex
	name       string
	port       uint16
	txt        []string
	publishErr error
	closed     int
}

func (f *fakePublisher) Publish(name string, port uint16, txt []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name, f.port, f.txt = name, port, txt
	return f.publishErr
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func newTestService(buf *bytes.Buffer, pubs ...*fakePublisher) *Service {
	s := NewService(slog.New(slog.NewTextHandler(buf, nil)))
	s.dial = func() (publisher, error) {
		if len(pubs) == 0 {
			return nil, errors.New("no avahi")
		}
		p := pubs[0]
		pubs = pubs[1:]
		return p, nil
	}
	return s
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "_tagmark._tcp", ServiceType)
	assert.Equal(t, "v1", APIVersion)
}

func TestAdvertisement_TXT(t *testing.T) {
	assert.Equal(t, []string{"api=v1", "path=/api/v1"}, Advertisement{}.TXT())
	assert.Contains(t, Advertisement{Version: "1.2.0"}.TXT(), "version=1.2.0")
}

func TestServiceStart(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{}
	s := newTestService(&buf, pub)

	require.NoError(t, s.Start(Advertisement{Name: "Bookmarks", Version: "dev", Port: 8080}))

	assert.Equal(t, "Bookmarks", pub.name)
	assert.EqualValues(t, 8080, pub.port)
	assert.Contains(t, pub.txt, "version=dev")
	assert.Contains(t, buf.String(), "mDNS advertisement started")
}

func TestServiceStart_DefaultName(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestService(&bytes.Buffer{}, pub)

	require.NoError(t, s.Start(Advertisement{Port: 8080}))
	assert.Contains(t, pub.name, "Tagmark on ")
}

func TestServiceStart_Errors(t *testing.T) {
	t.Run("invalid port", func(t *testing.T) {
		s := newTestService(&bytes.Buffer{}, &fakePublisher{})
		assert.Error(t, s.Start(Advertisement{Port: 0}))
		assert.Error(t, s.Start(Advertisement{Port: 70000}))
	})

	t.Run("no avahi daemon", func(t *testing.T) {
		s := newTestService(&bytes.Buffer{})
		assert.ErrorContains(t, s.Start(Advertisement{Port: 8080}), "connect to avahi")
		assert.Nil(t, s.pub)
	})

	t.Run("publish rejected", func(t *testing.T) {
		pub := &fakePublisher{publishErr: errors.New("collision")}
		s := newTestService(&bytes.Buffer{}, pub)

		assert.ErrorContains(t, s.Start(Advertisement{Port: 8080}), "collision")
		assert.Equal(t, 1, pub.closed)
		assert.Nil(t, s.pub)
	})
}

func TestServiceRestart(t *testing.T) {
	first, second := &fakePublisher{}, &fakePublisher{}
	s := newTestService(&bytes.Buffer{}, first, second)

	require.NoError(t, s.Start(Advertisement{Port: 8080}))
	require.NoError(t, s.Start(Advertisement{Port: 8081}))

	assert.Equal(t, 1, first.closed)
	assert.EqualValues(t, 8081, second.port)
}

func TestServiceStop(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{}
	s := newTestService(&buf, pub)

	s.Stop() // not started
	require.NoError(t, s.Start(Advertisement{Port: 8080}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(s.Stop)
	}
	wg.Wait()

	assert.Equal(t, 1, pub.closed)
	assert.Nil(t, s.pub)
	assert.Contains(t, buf.String(), "mDNS advertisement stopped")
}
