package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

type accessGrantReader interface {
	ListActiveByFolderIDs(ctx context.Context, folderIDs []string) ([]models.PermissionGrant, error)
}

type accessUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type accessEntitlementChecker interface {
	HasEntitlement(ctx context.Context, userID, permission string) (bool, error)
}

// principal is the resolved identity a permission check runs against.
type principal struct {
	UserID       string
	DepartmentID *string
}

// AccessService answers "may this user perform this action on this folder".
// Resolution walks the ancestor chain once, loads every grant along it in a
// single query, and then evaluates precedence in memory:
//
//  1. the manage_folders department entitlement allows every action on any
//     existing folder
//  2. folder owner is always allowed
//  3. public folders allow read to any user
//  4. an exact-match active grant (user or department subject) allows
//  5. folders with inheritance enabled defer to their parent
//  6. otherwise deny
//
// Denials are ordinary false results; only a missing or inactive target
// folder is an error.
type AccessService struct {
	walker       *HierarchyWalker
	grants       accessGrantReader
	users        accessUserReader
	entitlements accessEntitlementChecker
	logger       *zap.Logger
}

// NewAccessService creates an AccessService.
func NewAccessService(walker *HierarchyWalker, grants accessGrantReader, users accessUserReader, entitlements accessEntitlementChecker, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		walker:       walker,
		grants:       grants,
		users:        users,
		entitlements: entitlements,
		logger:       logger,
	}
}

// Can resolves a single (user, folder, action) check.
func (s *AccessService) Can(ctx context.Context, userID, folderID string, action models.PermissionType) (bool, error) {
	if !models.ValidPermissionType(action) {
		return false, appErrors.Clone(appErrors.ErrValidation, "unknown permission type")
	}

	bypass, err := s.entitlements.HasEntitlement(ctx, userID, models.PermissionManageFolders)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entitlements")
	}
	if bypass {
		// The entitlement skips grant evaluation, not target existence.
		if _, err := s.walker.Chain(ctx, folderID); err != nil {
			return false, err
		}
		return true, nil
	}

	snapshot, err := s.loadSnapshot(ctx, userID, folderID)
	if err != nil {
		return false, err
	}
	return snapshot.resolve(action), nil
}

// ResolveActions resolves every permission type for one (user, folder) pair
// using a single chain walk and grant load.
func (s *AccessService) ResolveActions(ctx context.Context, userID, folderID string) (*dto.AccessCheckResponse, error) {
	actions := []models.PermissionType{
		models.PermissionRead,
		models.PermissionWrite,
		models.PermissionDelete,
		models.PermissionManage,
	}
	allowed := make(map[models.PermissionType]bool, len(actions))

	bypass, err := s.entitlements.HasEntitlement(ctx, userID, models.PermissionManageFolders)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entitlements")
	}
	if bypass {
		// Target must still exist for the response to be meaningful.
		if _, err := s.walker.Chain(ctx, folderID); err != nil {
			return nil, err
		}
		for _, action := range actions {
			allowed[action] = true
		}
		return &dto.AccessCheckResponse{FolderID: folderID, Allowed: allowed}, nil
	}

	snapshot, err := s.loadSnapshot(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	for _, action := range actions {
		allowed[action] = snapshot.resolve(action)
	}
	return &dto.AccessCheckResponse{FolderID: folderID, Allowed: allowed}, nil
}

// Require resolves a check and maps denial to a forbidden error. Services
// guard their operations through this.
func (s *AccessService) Require(ctx context.Context, userID, folderID string, action models.PermissionType) error {
	allowed, err := s.Can(ctx, userID, folderID, action)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient folder permissions")
	}
	return nil
}

// accessSnapshot holds everything one resolution needs, loaded up front.
type accessSnapshot struct {
	chain          []models.Folder
	grantsByFolder map[string][]models.PermissionGrant
	who            principal
}

func (s *AccessService) loadSnapshot(ctx context.Context, userID, folderID string) (*accessSnapshot, error) {
	chain, err := s.walker.Chain(ctx, folderID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	ids := make([]string, len(chain))
	for i, folder := range chain {
		ids[i] = folder.ID
	}
	grants, err := s.grants.ListActiveByFolderIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder grants")
	}
	grantsByFolder := make(map[string][]models.PermissionGrant, len(chain))
	for _, grant := range grants {
		grantsByFolder[grant.FolderID] = append(grantsByFolder[grant.FolderID], grant)
	}

	return &accessSnapshot{
		chain:          chain,
		grantsByFolder: grantsByFolder,
		who:            principal{UserID: user.ID, DepartmentID: user.DepartmentID},
	}, nil
}

// resolve evaluates precedence over the preloaded chain. The walk starts at
// the target and climbs only while inheritance stays enabled.
func (snap *accessSnapshot) resolve(action models.PermissionType) bool {
	for _, folder := range snap.chain {
		if folder.OwnerID == snap.who.UserID {
			return true
		}
		if folder.AccessLevel == models.AccessLevelPublic && action == models.PermissionRead {
			return true
		}
		if snap.grantMatches(folder.ID, action) {
			return true
		}
		if !folder.InheritPermissions {
			return false
		}
	}
	return false
}

// grantMatches reports whether an active grant on the folder names the user
// or the user's department with exactly the requested permission type. Types
// never subsume each other.
func (snap *accessSnapshot) grantMatches(folderID string, action models.PermissionType) bool {
	for _, grant := range snap.grantsByFolder[folderID] {
		if grant.PermissionType != action {
			continue
		}
		if grant.UserID != nil && *grant.UserID == snap.who.UserID {
			return true
		}
		if grant.DepartmentID != nil && snap.who.DepartmentID != nil && *grant.DepartmentID == *snap.who.DepartmentID {
			return true
		}
	}
	return false
}
