package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
)

func writeCatalog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", `
defaultTimeoutSeconds: 30
observability:
  listenAddress: "127.0.0.1:9090"
tools:
  - name: Echo
    type: echo
    description: returns its input
    category: core
    params:
      text:
        kind: string
        required: true
  - name: Fetch
    type: http_request
    serial: true
    timeoutSeconds: 10
    settings:
      endpoint: https://api.example.com/v1
    params:
      method:
        kind: string
        enum: [GET, POST]
`)

	doc, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 30, doc.Runtime.DefaultTimeoutSeconds)
	assert.Equal(t, "127.0.0.1:9090", doc.Runtime.Observability.ListenAddress)
	require.Len(t, doc.Tools, 2)

	echo := doc.Tools[0]
	assert.Equal(t, "Echo", echo.Name)
	assert.Equal(t, "echo", echo.Type)
	require.Contains(t, echo.Params, "text")
	assert.True(t, echo.Params["text"].Required)
	assert.Equal(t, domain.KindString, echo.Params["text"].Kind)

	fetch := doc.Tools[1]
	assert.True(t, fetch.Serial)
	assert.Equal(t, 10, fetch.TimeoutSeconds)
	assert.Equal(t, "https://api.example.com/v1", fetch.Settings["endpoint"])
	assert.Len(t, fetch.Params["method"].Enum, 2)
}

func TestLoader_LoadTOML(t *testing.T) {
	path := writeCatalog(t, "catalog.toml", `
defaultTimeoutSeconds = 45

[[tools]]
name = "Clock"
type = "time"
description = "current time"
`)

	doc, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 45, doc.Runtime.DefaultTimeoutSeconds)
	require.Len(t, doc.Tools, 1)
	assert.Equal(t, "Clock", doc.Tools[0].Name)
}

func TestLoader_YAMLAndTOMLParseIdentically(t *testing.T) {
	yamlPath := writeCatalog(t, "catalog.yaml", `
defaultTimeoutSeconds: 45
tools:
  - name: Clock
    type: time
    description: current time
    serial: true
    params:
      timezone:
        kind: string
`)
	tomlPath := writeCatalog(t, "catalog.toml", `
defaultTimeoutSeconds = 45

[[tools]]
name = "Clock"
type = "time"
description = "current time"
serial = true

[tools.params.timezone]
kind = "string"
`)

	loader := NewLoader(zap.NewNop())
	fromYAML, err := loader.Load(context.Background(), yamlPath)
	require.NoError(t, err)
	fromTOML, err := loader.Load(context.Background(), tomlPath)
	require.NoError(t, err)

	if diff := cmp.Diff(fromYAML, fromTOML); diff != "" {
		t.Errorf("format mismatch (-yaml +toml):\n%s", diff)
	}
}

func TestLoader_Defaults(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", `
tools:
  - name: Echo
    type: echo
`)
	doc, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCallTimeoutSeconds, doc.Runtime.DefaultTimeoutSeconds)
	assert.True(t, doc.Runtime.Observability.EnableMetrics)
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("TOOLDECK_TEST_ENDPOINT", "https://internal.example.com")
	path := writeCatalog(t, "catalog.yaml", `
tools:
  - name: Fetch
    type: http_request
    settings:
      endpoint: ${TOOLDECK_TEST_ENDPOINT}/api
`)
	doc, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://internal.example.com/api", doc.Tools[0].Settings["endpoint"])
}

func TestLoader_UnknownParamKind(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", `
tools:
  - name: Echo
    type: echo
    params:
      text:
        kind: varchar
`)
	_, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestLoader_IntegerKindNormalizesToNumber(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", `
tools:
  - name: Pager
    type: http_request
    params:
      page:
        kind: integer
`)
	doc, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, domain.KindNumber, doc.Tools[0].Params["page"].Kind)
}

func TestLoader_DuplicateNameSameTypeLastWins(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", `
tools:
  - name: Echo
    type: echo
    description: first
  - name: Echo
    type: echo
    description: second
`)
	doc, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Tools, 1)
	assert.Equal(t, "second", doc.Tools[0].Description)
}

func TestLoader_DuplicateNameConflictingType(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", `
tools:
  - name: Echo
    type: echo
  - name: Echo
    type: shell
`)
	_, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestLoader_LoadAllCrossFileConflict(t *testing.T) {
	first := writeCatalog(t, "a.yaml", `
tools:
  - name: Echo
    type: echo
`)
	second := writeCatalog(t, "b.yaml", `
tools:
  - name: Echo
    type: shell
`)
	_, err := NewLoader(zap.NewNop()).LoadAll(context.Background(), []string{first, second})
	require.Error(t, err)
	kind, ok := domain.KindFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrDuplicateName, kind)
}
