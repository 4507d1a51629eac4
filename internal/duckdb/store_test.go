package duckdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
	assert.Empty(t, s.Path())
}

func TestAppender(t *testing.T) {
	s := openInMemory(t)

	_, err := s.DB().Exec(`CREATE TABLE entries (chrom VARCHAR, pos BIGINT, af FLOAT)`)
	require.NoError(t, err)

	app, err := s.NewAppender("entries")
	require.NoError(t, err)

	require.NoError(t, app.AppendRow("1", int64(100), float32(0.25)))
	require.NoError(t, app.AppendRow("2", int64(200), float32(0.5)))
	require.NoError(t, app.AppendRow("2", int64(300), float32(0.0)))
	require.NoError(t, app.Close())

	var count int64
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count))
	assert.Equal(t, int64(3), count)

	var af float32
	require.NoError(t, s.DB().QueryRow(`SELECT af FROM entries WHERE chrom='2' AND pos=200`).Scan(&af))
	assert.Equal(t, float32(0.5), af)
}

func TestBuildInfo(t *testing.T) {
	s := openInMemory(t)

	_, ok := s.ReadBuildInfo()
	assert.False(t, ok, "empty store should have no build info")

	info := BuildInfo{
		Source: FileFingerprint{
			Path:    "/data/dbsnp.vcf.gz",
			Size:    123456789,
			ModTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Entries: 42,
		BuiltAt: time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC),
		Tool:    "indelclass prepare",
	}
	require.NoError(t, s.WriteBuildInfo(info))

	got, ok := s.ReadBuildInfo()
	require.True(t, ok)
	assert.Equal(t, info.Source.Path, got.Source.Path)
	assert.Equal(t, info.Source.Size, got.Source.Size)
	assert.Equal(t, info.Entries, got.Entries)
	assert.Equal(t, info.Tool, got.Tool)
	assert.True(t, info.BuiltAt.Equal(got.BuiltAt), "built_at should round-trip")

	// A rebuild replaces the previous record.
	info.Entries = 99
	require.NoError(t, s.WriteBuildInfo(info))
	got, ok = s.ReadBuildInfo()
	require.True(t, ok)
	assert.Equal(t, int64(99), got.Entries)

	var rows int64
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM build_info`).Scan(&rows))
	assert.Equal(t, int64(1), rows)
}
