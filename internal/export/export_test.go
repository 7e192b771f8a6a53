package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/config"
)

func TestDirSinkRoundTrip(t *testing.T) {
	sink, err := NewDirSink(filepath.Join(t.TempDir(), "exports"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sink.Put(ctx, "run-1", "city/gdm.json", []byte(`{"a":1}`)))
	require.NoError(t, sink.Put(ctx, "run-1", "town.json", []byte(`{}`)))

	data, err := sink.Get(ctx, "run-1", "city/gdm.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	names, err := sink.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"city/gdm.json", "town.json"}, names)

	_, err = sink.Get(ctx, "run-1", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err = sink.List(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDirSinkRejectsBadNames(t *testing.T) {
	sink, err := NewDirSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, sink.Put(ctx, "", "a.json", nil))
	assert.Error(t, sink.Put(ctx, "run", "", nil))
	assert.Error(t, sink.Put(ctx, "run", "../../escape.json", nil))
}

func TestNewSelectsSink(t *testing.T) {
	sink, err := New(config.ExportConfig{})
	require.NoError(t, err)
	assert.Nil(t, sink)

	sink, err = New(config.ExportConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &DirSink{}, sink)

	_, err = New(config.ExportConfig{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err, "missing credentials")

	sink, err = New(config.ExportConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b", Prefix: "/census/"})
	require.NoError(t, err)
	s3, ok := sink.(*S3Sink)
	require.True(t, ok)
	key, err := s3.objectKey("run-1", "/city.json")
	require.NoError(t, err)
	assert.Equal(t, "census/run-1/city.json", key)
}
