package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	"github.com/docnest/docnest-api/internal/repository"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

type hierarchyReader interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	ListChildren(ctx context.Context, parentID string) ([]models.Folder, error)
	AncestorChain(ctx context.Context, folderID string) ([]models.Folder, error)
}

// HierarchyWalker provides read-side traversal over the folder forest:
// ancestor chains for access resolution and breadcrumbs, descendant
// collection for subtree reports.
type HierarchyWalker struct {
	folders  hierarchyReader
	maxDepth int
}

// NewHierarchyWalker builds a HierarchyWalker bounded by maxDepth.
func NewHierarchyWalker(folders hierarchyReader, maxDepth int) *HierarchyWalker {
	if maxDepth <= 0 {
		maxDepth = 32
	}
	return &HierarchyWalker{folders: folders, maxDepth: maxDepth}
}

// Chain returns the folder and its active ancestors, target first. A missing
// or inactive target maps to not-found; an inactive ancestor silently
// truncates the chain.
func (w *HierarchyWalker) Chain(ctx context.Context, folderID string) ([]models.Folder, error) {
	chain, err := w.folders.AncestorChain(ctx, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		if errors.Is(err, repository.ErrDepthExceeded) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "folder hierarchy too deep")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to walk folder ancestors")
	}
	return chain, nil
}

// Path returns breadcrumb entries for a folder ordered root first.
func (w *HierarchyWalker) Path(ctx context.Context, folderID string) ([]dto.HierarchyPathEntry, error) {
	chain, err := w.Chain(ctx, folderID)
	if err != nil {
		return nil, err
	}
	path := make([]dto.HierarchyPathEntry, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		path = append(path, dto.HierarchyPathEntry{ID: chain[i].ID, Name: chain[i].Name})
	}
	return path, nil
}

// CollectSubtree returns the folder id plus every active descendant id,
// breadth first. Used by cascading reports; deletes compute their own closure
// transactionally.
func (w *HierarchyWalker) CollectSubtree(ctx context.Context, folderID string) ([]string, error) {
	if _, err := w.folders.FindByID(ctx, folderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}

	ids := []string{folderID}
	frontier := []string{folderID}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth > w.maxDepth {
			return nil, appErrors.Clone(appErrors.ErrInternal, "folder hierarchy too deep")
		}
		var next []string
		for _, id := range frontier {
			children, err := w.folders.ListChildren(ctx, id)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder children")
			}
			for _, child := range children {
				ids = append(ids, child.ID)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return ids, nil
}
