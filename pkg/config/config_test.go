package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, pagestore.CompressionZstd, cfg.Write.Compression)
	assert.True(t, cfg.Write.UseSplitEncoding)
	assert.Equal(t, "info", cfg.Log.Level)

	opts := cfg.WriteOptions()
	assert.True(t, opts.CompressionEnabled())
	assert.True(t, opts.SplitEnabled())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quasar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataset: events
write:
  compression: lz4
  use_split_encoding: false
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "events", cfg.Dataset)
	assert.Equal(t, pagestore.CompressionLZ4, cfg.Write.Compression)
	assert.False(t, cfg.Write.UseSplitEncoding)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateRejectsUnknownCodec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quasar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("write:\n  compression: brotli\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Dataset = "saved"
	require.NoError(t, Save(path, cfg))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", back.Dataset)
	assert.Equal(t, cfg.Write.Compression, back.Write.Compression)
}
