package clips

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

func TestExtractDateFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     time.Time
		ok       bool
	}{
		{
			name:     "standard_clip_name",
			filename: "noise-2025-01-15_14-32-05.wav",
			want:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			ok:       true,
		},
		{
			name:     "year_boundary",
			filename: "noise-2024-12-31_23-59-59.wav",
			want:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			ok:       true,
		},
		{name: "no_date", filename: "noise-.wav", ok: false},
		{name: "unrelated_file", filename: "readme.txt", ok: false},
		{name: "impossible_date", filename: "noise-2025-13-40_00-00-00.wav", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractDateFromFilename(tt.filename)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunCleanupDeletesExpiredLocalClips(t *testing.T) {
	dir := t.TempDir()
	expired := "noise-2020-01-01_00-00-00.wav"
	fresh := "noise-" + time.Now().Format(time.DateOnly) + "_12-00-00.wav"
	keep := []string{fresh, "unrelated.txt", "noise-stray.wav"}

	for _, name := range append([]string{expired}, keep...) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	store := NewStore(StoreConfig{
		Enabled:       true,
		Directory:     dir,
		StorageMode:   types.ClipStorageLocal,
		RetentionDays: 7,
	}, nil, nil)
	store.RunCleanup()

	assert.NoFileExists(t, filepath.Join(dir, expired))
	for _, name := range keep {
		assert.FileExists(t, filepath.Join(dir, name), "%s should survive cleanup", name)
	}
}

func TestRunCleanupRetentionZeroKeepsForever(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "noise-2020-01-01_00-00-00.wav")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))

	store := NewStore(StoreConfig{
		Enabled:       true,
		Directory:     dir,
		StorageMode:   types.ClipStorageLocal,
		RetentionDays: 0,
	}, nil, nil)
	store.RunCleanup()

	assert.FileExists(t, old)
}
