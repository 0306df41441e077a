package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santajump/server/internal/model"
)

type countingStore struct {
	cfg   model.GameConfig
	gets  int
	err   error
	saved []model.GameConfig
}

func (s *countingStore) Get(ctx context.Context) (model.GameConfig, error) {
	s.gets++
	if s.err != nil {
		return model.GameConfig{}, s.err
	}
	return s.cfg, nil
}

func (s *countingStore) Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error) {
	s.saved = append(s.saved, cfg)
	s.cfg = cfg
	return cfg, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestCache(store Store, ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(store, ttl)
	c.now = clock.Now
	return c, clock
}

func TestCache_ServesWithinTTL(t *testing.T) {
	store := &countingStore{cfg: model.GameConfig{MaxPlaysPerDay: 3}}
	c, clock := newTestCache(store, time.Minute)

	for i := 0; i < 5; i++ {
		cfg, err := c.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.MaxPlaysPerDay)
		clock.t = clock.t.Add(10 * time.Second)
	}
	assert.Equal(t, 1, store.gets)
}

func TestCache_RefetchesAfterTTL(t *testing.T) {
	store := &countingStore{cfg: model.GameConfig{MaxPlaysPerDay: 3}}
	c, clock := newTestCache(store, time.Minute)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	store.cfg.MaxPlaysPerDay = 5
	clock.t = clock.t.Add(61 * time.Second)
	cfg, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxPlaysPerDay)
	assert.Equal(t, 2, store.gets)
}

func TestCache_SaveInvalidates(t *testing.T) {
	store := &countingStore{cfg: model.GameConfig{MaxPlaysPerDay: 3}}
	c, _ := newTestCache(store, time.Hour)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	_, err = c.Save(context.Background(), model.GameConfig{MaxPlaysPerDay: 7})
	require.NoError(t, err)

	cfg, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxPlaysPerDay)
	assert.Equal(t, 2, store.gets)
}

func TestCache_StaleOnRefreshError(t *testing.T) {
	store := &countingStore{cfg: model.GameConfig{MaxPlaysPerDay: 3}}
	c, clock := newTestCache(store, time.Minute)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	store.err = errors.New("db down")
	clock.t = clock.t.Add(2 * time.Minute)
	cfg, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxPlaysPerDay)
}

func TestCache_ErrorWithoutValue(t *testing.T) {
	store := &countingStore{err: errors.New("db down")}
	c, _ := newTestCache(store, time.Minute)

	_, err := c.Get(context.Background())
	require.Error(t, err)
}

func TestNewCache_DefaultTTL(t *testing.T) {
	c := NewCache(&countingStore{}, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}
