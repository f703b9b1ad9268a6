package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matrixhub/internal/models"
)

// setupTestRedis creates a miniredis instance and a redis client for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestNormalize(t *testing.T) {
	doc := Normalize(models.StateDocument{Mode: -1, Brightness: 150, Rotation: 450})
	assert.Equal(t, 0, doc.Mode)
	assert.Equal(t, 100, doc.Brightness)
	assert.Equal(t, 90, doc.Rotation)

	doc = Normalize(models.StateDocument{Brightness: -5, Rotation: -90})
	assert.Equal(t, 0, doc.Brightness)
	assert.Equal(t, 270, doc.Rotation)
}

func TestMemoryStore_DefaultState(t *testing.T) {
	s := NewMemoryStore()
	doc := s.LoadState(context.Background())
	assert.Equal(t, models.DefaultState(), doc)
}

func TestMemoryStore_SaveLoadRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveState(context.Background(), models.StateDocument{Mode: 2, Brightness: 140, Rotation: 370}))

	doc := s.LoadState(context.Background())
	assert.Equal(t, 2, doc.Mode)
	assert.Equal(t, 100, doc.Brightness, "brightness clamped on save")
	assert.Equal(t, 10, doc.Rotation, "rotation wrapped on save")
}

func TestMemoryStore_ImageRevIncrements(t *testing.T) {
	s := NewMemoryStore()

	_, _, err := s.LoadImage(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)

	rev1, err := s.SaveImage(context.Background(), []byte("png-1"))
	require.NoError(t, err)
	rev2, err := s.SaveImage(context.Background(), []byte("png-2"))
	require.NoError(t, err)
	assert.Equal(t, rev1+1, rev2)

	data, rev, err := s.LoadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-2"), data)
	assert.Equal(t, rev2, rev)
}

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, models.DefaultState(), s.LoadState(context.Background()))

	require.NoError(t, s.SaveState(context.Background(), models.StateDocument{Mode: 3, Brightness: 80, Rotation: 180}))

	// A fresh store over the same directory sees the persisted copy.
	s2, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	doc := s2.LoadState(context.Background())
	assert.Equal(t, models.StateDocument{Mode: 3, Brightness: 80, Rotation: 180}, doc)
}

func TestFileStore_CorruptStateFallsBack(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.SaveState(context.Background(), models.StateDocument{Mode: 1, Brightness: 50, Rotation: 0}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644))

	doc := s.LoadState(context.Background())
	assert.Equal(t, models.StateDocument{Mode: 1, Brightness: 50, Rotation: 0}, doc,
		"decode error returns last known document")
}

func TestFileStore_ImageRevSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	rev, err := s.SaveImage(context.Background(), []byte("png-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	s2, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	rev, err = s2.SaveImage(context.Background(), []byte("png-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	data, got, err := s2.LoadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-2"), data)
	assert.Equal(t, int64(2), got)
}

func TestRedisStore_SaveLoadRoundtrip(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewRedisStore(rdb, zap.NewNop())

	assert.Equal(t, models.DefaultState(), s.LoadState(context.Background()))

	require.NoError(t, s.SaveState(context.Background(), models.StateDocument{Mode: 4, Brightness: 120, Rotation: -90}))

	doc := s.LoadState(context.Background())
	assert.Equal(t, models.StateDocument{Mode: 4, Brightness: 100, Rotation: 270}, doc)
}

func TestRedisStore_LoadErrorUsesLastKnown(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	s := NewRedisStore(rdb, zap.NewNop())

	require.NoError(t, s.SaveState(context.Background(), models.StateDocument{Mode: 2, Brightness: 70, Rotation: 90}))

	mr.Close()
	doc := s.LoadState(context.Background())
	assert.Equal(t, models.StateDocument{Mode: 2, Brightness: 70, Rotation: 90}, doc,
		"outage returns last known document")
}

func TestRedisStore_ImagePipeline(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewRedisStore(rdb, zap.NewNop())

	_, _, err := s.LoadImage(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)

	rev, err := s.SaveImage(context.Background(), []byte("png-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	rev, err = s.SaveImage(context.Background(), []byte("png-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	data, got, err := s.LoadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-2"), data)
	assert.Equal(t, int64(2), got)
}
