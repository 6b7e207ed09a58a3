package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tooldeck/internal/domain"
)

func specFixture(name, typ string) domain.ToolSpec {
	return domain.ToolSpec{Name: name, Type: typ, Description: name + " tool"}
}

func TestStore_LoadAndLookup(t *testing.T) {
	store := NewStore()
	err := store.Load([]domain.ToolSpec{
		specFixture("Echo", "echo"),
		specFixture("Fetch", "http_request"),
	}, domain.LoadMerge)
	require.NoError(t, err)

	spec, ok := store.Lookup("Echo")
	require.True(t, ok)
	assert.Equal(t, "echo", spec.Type)

	_, ok = store.Lookup("Missing")
	assert.False(t, ok)
}

func TestStore_MergeCollisionDifferentType(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Load([]domain.ToolSpec{specFixture("Echo", "echo")}, domain.LoadMerge))

	err := store.Load([]domain.ToolSpec{specFixture("Echo", "shell")}, domain.LoadMerge)
	require.Error(t, err)
	kind, ok := domain.KindFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrDuplicateName, kind)

	// Original definition untouched.
	spec, found := store.Lookup("Echo")
	require.True(t, found)
	assert.Equal(t, "echo", spec.Type)
}

func TestStore_IdempotentRedefinition(t *testing.T) {
	store := NewStore()
	first := specFixture("Echo", "echo")
	first.Settings = map[string]any{"prefix": "a"}
	require.NoError(t, store.Load([]domain.ToolSpec{first}, domain.LoadMerge))

	before := store.List(Filter{})

	// Same name+type loads again: observable state unchanged except last-write
	// settings, which here are identical.
	require.NoError(t, store.Load([]domain.ToolSpec{first}, domain.LoadMerge))
	assert.Equal(t, before, store.List(Filter{}))

	second := specFixture("Echo", "echo")
	second.Settings = map[string]any{"prefix": "b"}
	require.NoError(t, store.Load([]domain.ToolSpec{second}, domain.LoadMerge))

	spec, ok := store.Lookup("Echo")
	require.True(t, ok)
	assert.Equal(t, "b", spec.Settings["prefix"])
	assert.Equal(t, 1, store.Len())
}

func TestStore_Replace(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Load([]domain.ToolSpec{specFixture("Echo", "echo")}, domain.LoadMerge))
	require.NoError(t, store.Load([]domain.ToolSpec{specFixture("Clock", "time")}, domain.LoadReplace))

	_, ok := store.Lookup("Echo")
	assert.False(t, ok)
	_, ok = store.Lookup("Clock")
	assert.True(t, ok)
}

func TestStore_ListFilters(t *testing.T) {
	store := NewStore()
	github := specFixture("github_issues", "http_request")
	github.Category = "github"
	githubPR := specFixture("github_pulls", "http_request")
	githubPR.Category = "github"
	echo := specFixture("Echo", "echo")
	echo.Category = "core"
	require.NoError(t, store.Load([]domain.ToolSpec{github, githubPR, echo}, domain.LoadMerge))

	byType := store.List(Filter{Type: "http_request"})
	require.Len(t, byType, 2)
	assert.Equal(t, "github_issues", byType[0].Name)
	assert.Equal(t, "github_pulls", byType[1].Name)

	byCategory := store.List(Filter{Category: "core"})
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Echo", byCategory[0].Name)

	byPattern := store.List(Filter{NamePattern: "github_*"})
	assert.Len(t, byPattern, 2)

	all := store.List(Filter{})
	assert.Len(t, all, 3)
}

func TestStore_RejectsEmptyNameOrType(t *testing.T) {
	store := NewStore()
	assert.Error(t, store.Load([]domain.ToolSpec{{Type: "echo"}}, domain.LoadMerge))
	assert.Error(t, store.Load([]domain.ToolSpec{{Name: "Echo"}}, domain.LoadMerge))
}
