package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ranobepub/internal/convert"
	"ranobepub/pkg/utils"
)

func TestNew_WithoutDatabase(t *testing.T) {
	cfg := utils.DefaultConfig()
	cfg.Database.Enabled = false
	cfg.Output.Dir = t.TempDir()
	cfg.Fetch.MaxConcurrency = 3

	a, err := New(&cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Converter.History)
	assert.Equal(t, 3, a.API.MaxConcurrency)
	assert.Equal(t, convert.DirSink{Dir: cfg.Output.Dir}, a.Converter.Sink)
	assert.Equal(t, "ru", a.Converter.Options.Lang)
}

func TestNew_WithDatabase(t *testing.T) {
	cfg := utils.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "h.db")

	a, err := New(&cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.History)
	assert.NotNil(t, a.Converter.History)

	a.DisableHistory()
	assert.Nil(t, a.Converter.History)
}
