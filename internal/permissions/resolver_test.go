package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveCodesExpandsTransitiveClosure(t *testing.T) {
	forest := Forest{
		1: {Code: "catalog:all", Children: []int64{2, 3}},
		2: {Code: "category:read", Children: []int64{4}},
		3: {Code: "category:write"},
		4: {Code: "item:read"},
		5: {Code: "unrelated:read"},
	}

	codes := ResolveCodes(forest, []int64{1})
	require.Equal(t, []string{"catalog:all", "category:read", "category:write", "item:read"}, codes)
}

func TestResolveCodesDeduplicatesSharedDescendants(t *testing.T) {
	forest := Forest{
		1: {Code: "a", Children: []int64{3}},
		2: {Code: "b", Children: []int64{3}},
		3: {Code: "shared"},
	}

	codes := ResolveCodes(forest, []int64{1, 2})
	require.Equal(t, []string{"a", "b", "shared"}, codes)
}

func TestResolveCodesTerminatesOnCycle(t *testing.T) {
	forest := Forest{
		1: {Code: "a", Children: []int64{2}},
		2: {Code: "b", Children: []int64{1}},
	}

	codes := ResolveCodes(forest, []int64{1})
	require.Equal(t, []string{"a", "b"}, codes)
}

func TestResolveCodesSkipsDanglingIDs(t *testing.T) {
	forest := Forest{
		1: {Code: "a", Children: []int64{99}},
	}

	codes := ResolveCodes(forest, []int64{1, 42})
	require.Equal(t, []string{"a"}, codes)
}

func TestResolveCodesEmptyDirect(t *testing.T) {
	require.Empty(t, ResolveCodes(Forest{1: {Code: "a"}}, nil))
}
