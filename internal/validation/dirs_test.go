package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"janitor/internal/testutil"
)

func TestDirValidator_Writable(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name    string
		dir     string
		wantErr error
	}{
		{name: "existing", dir: root},
		{name: "missing is created", dir: filepath.Join(root, "a", "b")},
		{name: "file", dir: file, wantErr: ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := testutil.NewLogRecorder()
			err := NewDirValidator(logs.Logger()).Writable(tt.dir)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.DirExists(t, tt.dir)
			assert.True(t, logs.Contains("directory validated"))

			entries, err := os.ReadDir(tt.dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.NotContains(t, e.Name(), ".write_test")
			}
		})
	}
}

func TestDirValidator_BelowFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	err := NewDirValidator(nil).Writable(filepath.Join(file, "uploads"))
	assert.Error(t, err)
}
