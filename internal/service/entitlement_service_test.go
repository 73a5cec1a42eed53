package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entitlementSourceStub struct {
	byUser map[string][]string
	err    error
	calls  int
}

func (s *entitlementSourceStub) EntitlementsOf(ctx context.Context, userID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byUser[userID], nil
}

func newEntitlementFixture(source *entitlementSourceStub) *EntitlementService {
	// Nil cache repo keeps CacheService disabled so every call hits the source.
	cache := NewCacheService(nil, nil, time.Minute, nil, false)
	return NewEntitlementService(source, cache, time.Minute, nil)
}

func TestEntitlementsOfReturnsDepartmentPermissions(t *testing.T) {
	source := &entitlementSourceStub{byUser: map[string][]string{
		"u1": {"manage_folders", "view_reports"},
	}}
	svc := newEntitlementFixture(source)

	perms, err := svc.EntitlementsOf(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_folders", "view_reports"}, perms)
}

func TestEntitlementsOfEmptyForUserWithoutDepartment(t *testing.T) {
	source := &entitlementSourceStub{byUser: map[string][]string{}}
	svc := newEntitlementFixture(source)

	perms, err := svc.EntitlementsOf(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestEntitlementLookupFailureSurfaces(t *testing.T) {
	source := &entitlementSourceStub{err: errors.New("db down")}
	svc := newEntitlementFixture(source)

	_, err := svc.EntitlementsOf(context.Background(), "u1")
	assert.Error(t, err)
}

func TestHasEntitlement(t *testing.T) {
	source := &entitlementSourceStub{byUser: map[string][]string{
		"u1": {"manage_folders"},
	}}
	svc := newEntitlementFixture(source)

	has, err := svc.HasEntitlement(context.Background(), "u1", "manage_folders")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasEntitlement(context.Background(), "u1", "view_reports")
	require.NoError(t, err)
	assert.False(t, has)
}
