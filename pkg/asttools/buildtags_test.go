package asttools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileRequiresTag(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name:    "plain tag",
			content: "//go:build paramtest\n\npackage x\n",
			want:    true,
		},
		{
			name:    "no constraint",
			content: "package x\n",
			want:    false,
		},
		{
			name:    "different tag",
			content: "//go:build integration\n\npackage x\n",
			want:    false,
		},
		{
			name:    "negated tag",
			content: "//go:build !paramtest\n\npackage x\n",
			want:    false,
		},
		{
			// Either tag admits the file and a bare build excludes it
			name:    "tag or other",
			content: "//go:build paramtest || integration\n\npackage x\n",
			want:    true,
		},
		{
			// The tag alone cannot satisfy the conjunction
			name:    "tag and other",
			content: "//go:build paramtest && linux\n\npackage x\n",
			want:    false,
		},
		{
			name:    "legacy plus build",
			content: "// +build paramtest\n\npackage x\n",
			want:    true,
		},
		{
			name:    "both syntaxes",
			content: "//go:build paramtest\n// +build paramtest\n\npackage x\n",
			want:    true,
		},
		{
			name:    "constraint after package clause is ignored",
			content: "package x\n\n//go:build paramtest\n",
			want:    false,
		},
		{
			name:    "unparsable constraint line is ignored",
			content: "//go:build ((\n\npackage x\n",
			want:    false,
		},
		{
			name:    "comments before the constraint",
			content: "// Package x holds test templates.\n//go:build paramtest\n\npackage x\n",
			want:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, "file.go", tt.content)
			got, err := FileRequiresTag(path, "paramtest")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileRequiresTagMissingFile(t *testing.T) {
	_, err := FileRequiresTag(filepath.Join(t.TempDir(), "nope.go"), "paramtest")
	assert.Error(t, err)
}
