package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
)

const sampleCatalog = `
defaultTimeoutSeconds: 5
watchCatalog: false
observability:
  listenAddress: "127.0.0.1:0"
  enableMetrics: false

tools:
  - name: Echo
    type: echo
    description: Echo the given text back.
    params:
      text:
        kind: string
        required: true
  - name: Clock
    type: time
    category: utility
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateConfig(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)

	doc, err := ValidateConfig(context.Background(), []string{path}, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, doc.Tools, 2)
	assert.Equal(t, 5, doc.Runtime.DefaultTimeoutSeconds)
	assert.False(t, doc.Runtime.WatchCatalog)
}

func TestCallOnce_Echo(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)

	result, err := CallOnce(context.Background(), []string{path}, domain.CallRequest{
		Tool: "Echo",
		Args: map[string]any{"text": "hello"},
	}, zap.NewNop())
	require.NoError(t, err)

	require.True(t, result.OK(), "call failed: %v", result.Err)
	assert.Equal(t, "hello", result.Value)
	assert.NotEmpty(t, result.ID)
}

func TestCallOnce_ValidationError(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)

	result, err := CallOnce(context.Background(), []string{path}, domain.CallRequest{
		Tool: "Echo",
		Args: map[string]any{},
	}, zap.NewNop())
	require.NoError(t, err)

	require.NotNil(t, result.Err)
	assert.Equal(t, domain.ErrValidation, result.Err.Kind)
}

func TestEngine_ApplyCatalog_DropsChangedInstances(t *testing.T) {
	engine := NewEngine(domain.RuntimeConfig{DefaultTimeoutSeconds: 5},
		NewMetrics(NewMetricsRegistry()), zap.NewNop())

	original := []domain.ToolSpec{
		{Name: "Echo", Type: "echo"},
		{Name: "Shout", Type: "echo", Settings: map[string]any{"prefix": "! "}},
	}
	require.NoError(t, engine.Catalog.Load(original, domain.LoadMerge))

	ctx := context.Background()
	for _, name := range []string{"Echo", "Shout"} {
		_, err := engine.Cache.GetOrCreate(ctx, name)
		require.Nil(t, err)
	}
	require.ElementsMatch(t, []string{"Echo", "Shout"}, engine.Cache.Names())

	// Shout changes settings, Echo is untouched, Shout2 is new.
	require.NoError(t, engine.ApplyCatalog([]domain.ToolSpec{
		{Name: "Echo", Type: "echo"},
		{Name: "Shout", Type: "echo", Settings: map[string]any{"prefix": "!! "}},
		{Name: "Shout2", Type: "echo"},
	}))

	assert.ElementsMatch(t, []string{"Echo"}, engine.Cache.Names())
	assert.Equal(t, 3, engine.Catalog.Len())
}

func TestEngine_ApplyCatalog_RemovedToolLosesInstance(t *testing.T) {
	engine := NewEngine(domain.RuntimeConfig{DefaultTimeoutSeconds: 5},
		NewMetrics(NewMetricsRegistry()), zap.NewNop())

	require.NoError(t, engine.Catalog.Load([]domain.ToolSpec{
		{Name: "Echo", Type: "echo"},
	}, domain.LoadMerge))

	_, err := engine.Cache.GetOrCreate(context.Background(), "Echo")
	require.Nil(t, err)

	require.NoError(t, engine.ApplyCatalog(nil))

	assert.Empty(t, engine.Cache.Names())
	_, ok := engine.Catalog.Lookup("Echo")
	assert.False(t, ok)

	// Health history outlives catalog membership.
	hr, ok := engine.Health.Status("Echo")
	assert.True(t, ok)
	assert.True(t, hr.Available)
}

func TestValidateConfig_MergesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "base.yaml")
	second := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(first, []byte(sampleCatalog), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(`
tools:
  - name: Echo2
    type: echo
`), 0o644))

	doc, err := ValidateConfig(context.Background(), []string{first, second}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, doc.Tools, 3)

	// Runtime settings come from the first file, not the defaults of later
	// files.
	assert.Equal(t, 5, doc.Runtime.DefaultTimeoutSeconds)
}

func TestValidateConfig_CrossFileTypeConflict(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "base.yaml")
	second := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(first, []byte(sampleCatalog), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(`
tools:
  - name: Echo
    type: time
`), 0o644))

	_, err := ValidateConfig(context.Background(), []string{first, second}, zap.NewNop())
	require.Error(t, err)
	kind, ok := domain.KindFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrDuplicateName, kind)
}

func TestApplication_Reload_KeepsCatalogOnBrokenEdit(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	logger := zap.NewNop()
	app := New(logger)

	loader := catalog.NewLoader(logger)
	doc, err := loader.LoadAll(context.Background(), []string{path})
	require.NoError(t, err)

	engine := NewEngine(doc.Runtime, NewMetrics(NewMetricsRegistry()), logger)
	require.NoError(t, engine.Catalog.Load(doc.Tools, domain.LoadMerge))

	require.NoError(t, os.WriteFile(path, []byte("tools:\n  - name: Broken\n"), 0o644))
	app.reload(context.Background(), loader, []string{path}, engine, nil)

	// Broken edit rejected, previous catalog intact.
	assert.Equal(t, 2, engine.Catalog.Len())
}
