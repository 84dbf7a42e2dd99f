package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBenchArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantRuns   int
		wantFamily string
		wantUVDoc  bool
		wantErr    bool
	}{
		{"defaults", nil, 3, "server", false, false},
		{"runs only", []string{"5"}, 5, "server", false, false},
		{"runs and family", []string{"2", "mobile"}, 2, "mobile", false, false},
		{"uvdoc on", []string{"1", "server", "uvdoc"}, 1, "server", true, false},
		{"uvdoc off", []string{"4", "mobile", "0"}, 4, "mobile", false, false},
		{"bad runs", []string{"abc"}, 0, "", false, true},
		{"zero runs", []string{"0"}, 0, "", false, true},
		{"bad family", []string{"3", "desktop"}, 0, "", false, true},
		{"bad uvdoc", []string{"3", "server", "yes"}, 0, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, family, uvdoc, err := parseBenchArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRuns, runs)
			assert.Equal(t, tt.wantFamily, family)
			assert.Equal(t, tt.wantUVDoc, uvdoc)
		})
	}
}

func TestListBenchImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", "c.JPEG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o750))

	files, err := listBenchImages(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.png"), files[1])
	assert.Equal(t, filepath.Join(dir, "c.JPEG"), files[2])
}

func TestListBenchImagesMissingDir(t *testing.T) {
	_, err := listBenchImages(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
