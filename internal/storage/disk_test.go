package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

func TestDiskCache_PutAndGet(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), ldlog.NewDisabledLoggers())
	require.NoError(t, err)

	eval := domain.Evaluation{Flag: "flag_a", Identifier: "true", Kind: domain.KindBoolean, Value: true}
	dc.Put("E1_T1", "flag_a", eval)

	got, ok := dc.Get("E1_T1", "flag_a")
	require.True(t, ok)
	assert.Equal(t, eval, got)
}

func TestDiskCache_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewDiskCache(dir, ldlog.NewDisabledLoggers())
	require.NoError(t, err)
	first.PutAll("E1_T1", sampleEvaluations())

	second, err := NewDiskCache(dir, ldlog.NewDisabledLoggers())
	require.NoError(t, err)

	assert.Equal(t, sampleEvaluations(), second.GetAll("E1_T1"))

	keys, err := second.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"E1_T1"}, keys)
}

func TestDiskCache_KeysAreEscaped(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, ldlog.NewDisabledLoggers())
	require.NoError(t, err)

	key := domain.CacheKey("env/with/slashes", "user 1")
	dc.Put(key, "flag_a", domain.Evaluation{Flag: "flag_a", Value: "x"})

	keys, err := dc.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskCache_RemoveAndClear(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, ldlog.NewDisabledLoggers())
	require.NoError(t, err)

	dc.PutAll("E1_T1", sampleEvaluations())
	dc.Remove("E1_T1", "flag_a")

	reopened, err := NewDiskCache(dir, ldlog.NewDisabledLoggers())
	require.NoError(t, err)
	assert.Len(t, reopened.GetAll("E1_T1"), 2)

	reopened.Clear()
	assert.Empty(t, reopened.GetAll("E1_T1"))

	keys, err := reopened.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDiskCache_CorruptFileFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "E1_T1.json"), []byte("{not json"), 0644))

	mockLog := ldlogtest.NewMockLog()
	dc, err := NewDiskCache(dir, mockLog.Loggers)
	require.NoError(t, err)

	_, ok := dc.Get("E1_T1", "flag_a")
	assert.False(t, ok)
	mockLog.AssertMessageMatch(t, true, ldlog.Warn, "Ignoring unreadable cache file for E1_T1")
}

func TestFeatureCache_PutAllAndGet(t *testing.T) {
	fc, err := NewFeatureCache(100)
	require.NoError(t, err)
	defer fc.Close()

	fc.PutAll("env", "1", []domain.FeatureConfig{
		{Feature: "flag_a", Kind: domain.KindBoolean, State: "on"},
		{Feature: "flag_b", Kind: domain.KindString, State: "off"},
	})

	got, ok := fc.Get("env", "1", "flag_a")
	require.True(t, ok)
	assert.Equal(t, "on", got.State)

	_, ok = fc.Get("other-env", "1", "flag_a")
	assert.False(t, ok)

	fc.Clear()
	_, ok = fc.Get("env", "1", "flag_a")
	assert.False(t, ok)
}

func TestFeatureCache_DefaultSize(t *testing.T) {
	fc, err := NewFeatureCache(0)
	require.NoError(t, err)
	defer fc.Close()

	assert.GreaterOrEqual(t, fc.HitRatio(), 0.0)
}
