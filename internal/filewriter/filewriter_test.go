package filewriter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The paths in these tests always contain a directory so the writer never
// needs to resolve the default output directory.

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want FileFormat
	}{
		{"report.txt", FormatTxt},
		{"out/REPORT.TXT", FormatTxt},
		{"report.csv", FormatCSV},
		{"report.json", FormatJSON},
		{"report.yaml", FormatUnknown},
		{"report", FormatUnknown},
		{"dir.txt/report", FormatUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectFormat(tt.path), "path %q", tt.path)
	}
}

func TestNewFileWriterRejectsUnknownFormat(t *testing.T) {
	_, err := NewFileWriter(filepath.Join(t.TempDir(), "report.xml"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output file format")
}

func TestTextWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	writer, err := NewFileWriter(path, false)
	require.NoError(t, err)

	require.NoError(t, writer.Write([]string{"alpha", "beta"}))
	require.NoError(t, writer.Write([]string{"gamma"}))
	require.NoError(t, writer.Write(nil), "empty writes are a no-op")
	writer.Close()

	assert.Equal(t, "alpha\nbeta\ngamma\n", readOutput(t, path))
}

func TestTextWriterTruncatesByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	writer, err := NewFileWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, writer.Write([]string{"fresh"}))
	writer.Close()

	assert.Equal(t, "fresh\n", readOutput(t, path))
}

func TestTextWriterAppendMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	writer, err := NewFileWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, writer.Write([]string{"new"}))
	writer.Close()

	assert.Equal(t, "old\nnew\n", readOutput(t, path))
}

func TestCsvWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	writer, err := NewFileWriter(path, false)
	require.NoError(t, err)

	headers := []string{"name", "status"}
	require.NoError(t, writer.Write([]string{"first", "ok"}, headers))
	require.NoError(t, writer.WriteMultiple([][]string{
		{"second", "failed"},
		{"third", "ok"},
	}, headers))
	writer.Close()

	assert.Equal(t, "name,status\nfirst,ok\nsecond,failed\nthird,ok\n", readOutput(t, path))
}

func TestCsvWriterValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	writer, err := NewFileWriter(path, false)
	require.NoError(t, err)
	defer writer.Close()

	err = writer.Write([]string{"row"})
	require.Error(t, err, "headers are mandatory for CSV output")
	assert.Contains(t, err.Error(), "headers")

	err = writer.Write([]string{"too", "many", "fields"}, []string{"name", "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match header count")

	require.NoError(t, writer.Write([]string{"first", "ok"}, []string{"name", "status"}))
	err = writer.Write([]string{"second", "ok"}, []string{"name", "different"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match existing header")
}

func TestCsvWriterAppendChecksExistingHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,status\nold,ok\n"), 0o644))

	writer, err := NewFileWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, writer.Write([]string{"new", "ok"}, []string{"name", "status"}))
	writer.Close()
	assert.Equal(t, "name,status\nold,ok\nnew,ok\n", readOutput(t, path))

	writer, err = NewFileWriter(path, true)
	require.NoError(t, err)
	defer writer.Close()
	err = writer.Write([]string{"x", "y"}, []string{"different", "headers"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match existing header")
}

type jsonRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJsonWriterSingleThenArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	writer, err := NewFileWriter(path, false)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.WriteAny(jsonRecord{Name: "first", Count: 1}))
	var single jsonRecord
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, path)), &single),
		"a lone element is written standalone, not wrapped in an array")
	assert.Equal(t, jsonRecord{Name: "first", Count: 1}, single)

	require.NoError(t, writer.WriteAny(jsonRecord{Name: "second", Count: 2}))
	var many []jsonRecord
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, path)), &many))
	assert.Equal(t, []jsonRecord{{Name: "first", Count: 1}, {Name: "second", Count: 2}}, many)
}

func TestJsonWriterFlattensSlices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	writer, err := NewFileWriter(path, false)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.WriteAny([]jsonRecord{
		{Name: "first", Count: 1},
		{Name: "second", Count: 2},
	}, true))
	require.NoError(t, writer.WriteAny(jsonRecord{Name: "third", Count: 3}))

	var records []jsonRecord
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, path)), &records))
	assert.Equal(t, []jsonRecord{
		{Name: "first", Count: 1},
		{Name: "second", Count: 2},
		{Name: "third", Count: 3},
	}, records)
}

func TestJsonWriterAppendsToExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"old","count":0}`), 0o644))

	writer, err := NewFileWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, writer.WriteAny(jsonRecord{Name: "new", Count: 1}))
	writer.Close()

	var records []jsonRecord
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, path)), &records))
	assert.Equal(t, []jsonRecord{{Name: "old", Count: 0}, {Name: "new", Count: 1}}, records)
}

func TestWriterRequiresInitialization(t *testing.T) {
	var writer FileWriter
	err := writer.Write([]string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not properly initialized")

	err = writer.WriteAny(jsonRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not properly initialized")
}

func TestSetPathSwitchesFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")

	writer, err := NewFileWriter(first, false)
	require.NoError(t, err)
	assert.Equal(t, first, writer.GetPath())
	require.NoError(t, writer.Write([]string{"one"}))

	require.NoError(t, writer.SetPath(second))
	assert.Equal(t, second, writer.GetPath())
	require.NoError(t, writer.Write([]string{"two"}))
	writer.Close()

	assert.Equal(t, "one\n", readOutput(t, first))
	assert.Equal(t, "two\n", readOutput(t, second))
}
