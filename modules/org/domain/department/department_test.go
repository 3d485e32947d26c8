package department

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

func TestExpectedPath(t *testing.T) {
	path, level, err := ExpectedPath(3, nil)
	require.NoError(t, err)
	require.Equal(t, orgpath.Label("3"), path)
	require.Equal(t, 1, level)

	parent := &Department{ID: 3, Level: 1, Path: "3"}
	path, level, err = ExpectedPath(11, parent)
	require.NoError(t, err)
	require.Equal(t, orgpath.Label("3.11"), path)
	require.Equal(t, 2, level)

	_, _, err = ExpectedPath(0, parent)
	require.ErrorIs(t, err, orgpath.ErrEncoding)
}

func TestConsistent(t *testing.T) {
	rootID := int64(1)
	root := Department{ID: 1, Level: 1, Path: "1"}
	require.True(t, root.Consistent(nil))
	require.True(t, root.IsRoot())

	child := Department{ID: 4, ParentID: &rootID, Level: 2, Path: "1.4"}
	require.True(t, child.Consistent(&root))
	require.False(t, child.IsRoot())

	stale := child
	stale.Path = "2.4"
	require.False(t, stale.Consistent(&root))

	badLevel := child
	badLevel.Level = 3
	require.False(t, badLevel.Consistent(&root))

	wrongTail := child
	wrongTail.Path = "1.5"
	require.False(t, wrongTail.Consistent(&root))

	require.False(t, child.Consistent(nil))
}
