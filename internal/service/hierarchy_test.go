package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

func TestHierarchyPathRootFirst(t *testing.T) {
	root := "root"
	mid := "mid"
	walker := NewHierarchyWalker(folderTreeStub{folders: map[string]*models.Folder{
		"root": folderNode("root", "u1", nil, models.AccessLevelRestricted, false),
		"mid":  folderNode("mid", "u1", &root, models.AccessLevelInherited, true),
		"leaf": folderNode("leaf", "u1", &mid, models.AccessLevelInherited, true),
	}}, 32)

	path, err := walker.Path(context.Background(), "leaf")
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, "root", path[0].ID)
	assert.Equal(t, "mid", path[1].ID)
	assert.Equal(t, "leaf", path[2].ID)
}

func TestHierarchyPathMissingFolder(t *testing.T) {
	walker := NewHierarchyWalker(folderTreeStub{folders: map[string]*models.Folder{}}, 32)

	_, err := walker.Path(context.Background(), "gone")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestHierarchyCollectSubtree(t *testing.T) {
	root := "root"
	folders := map[string]*models.Folder{
		"root": folderNode("root", "u1", nil, models.AccessLevelRestricted, false),
		"a":    folderNode("a", "u1", &root, models.AccessLevelInherited, true),
		"b":    folderNode("b", "u1", &root, models.AccessLevelInherited, true),
	}
	a := "a"
	folders["a1"] = folderNode("a1", "u1", &a, models.AccessLevelInherited, true)
	walker := NewHierarchyWalker(folderTreeStub{folders: folders}, 32)

	ids, err := walker.CollectSubtree(context.Background(), "root")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "a", "b", "a1"}, ids)
}
