package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhiwen-go/internal/model"
)

func newPermissionFixture() (*fakeCollectionRepo, PermissionService) {
	repo := newFakeCollectionRepo()
	return repo, NewPermissionService(repo)
}

func TestCanAccess_OwnerHasFullAccess(t *testing.T) {
	repo, svc := newPermissionFixture()
	repo.addCollection(model.Collection{ID: "coll-1", Name: "私有集合", OwnerID: 1})

	for _, minRole := range []model.CollectionRole{model.RoleViewer, model.RoleEditor, model.RoleOwner} {
		ok, err := svc.CanAccess(1, "coll-1", minRole)
		require.NoError(t, err)
		assert.True(t, ok, "拥有者应当满足最低角色 %s", minRole)
	}
}

func TestCanAccess_MemberRoleCheckedAgainstMinimum(t *testing.T) {
	repo, svc := newPermissionFixture()
	repo.addCollection(model.Collection{ID: "coll-1", OwnerID: 1})
	require.NoError(t, repo.AddMember(&model.CollectionMember{CollectionID: "coll-1", UserID: 2, Role: model.RoleEditor}))

	cases := []struct {
		minRole model.CollectionRole
		want    bool
	}{
		{model.RoleViewer, true},
		{model.RoleEditor, true},
		{model.RoleOwner, false},
	}
	for _, tc := range cases {
		ok, err := svc.CanAccess(2, "coll-1", tc.minRole)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "editor 对最低角色 %s 的判定", tc.minRole)
	}
}

func TestCanAccess_NonMemberDeniedOnPrivateCollection(t *testing.T) {
	repo, svc := newPermissionFixture()
	repo.addCollection(model.Collection{ID: "coll-1", OwnerID: 1, IsPublic: false})

	ok, err := svc.CanAccess(99, "coll-1", model.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAccess_PublicCollectionGrantsReadOnly(t *testing.T) {
	repo, svc := newPermissionFixture()
	repo.addCollection(model.Collection{ID: "coll-pub", OwnerID: 1, IsPublic: true})

	ok, err := svc.CanAccess(99, "coll-pub", model.RoleViewer)
	require.NoError(t, err)
	assert.True(t, ok, "公开集合对登录用户开放只读")

	ok, err = svc.CanAccess(99, "coll-pub", model.RoleEditor)
	require.NoError(t, err)
	assert.False(t, ok, "公开集合不授予写权限")
}

func TestCanAccess_MissingCollectionIsDeniedNotError(t *testing.T) {
	_, svc := newPermissionFixture()

	ok, err := svc.CanAccess(1, "coll-missing", model.RoleViewer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessibleCollectionIDs_UnionOfMembershipAndPublic(t *testing.T) {
	repo, svc := newPermissionFixture()
	repo.addCollection(model.Collection{ID: "coll-own", OwnerID: 7})
	repo.addCollection(model.Collection{ID: "coll-member", OwnerID: 1})
	repo.addCollection(model.Collection{ID: "coll-pub", OwnerID: 1, IsPublic: true})
	repo.addCollection(model.Collection{ID: "coll-other", OwnerID: 1})
	require.NoError(t, repo.AddMember(&model.CollectionMember{CollectionID: "coll-member", UserID: 7, Role: model.RoleViewer}))

	ids, err := svc.AccessibleCollectionIDs(7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"coll-own", "coll-member", "coll-pub"}, ids)
}

func TestAccessibleCollectionIDs_NoAccessYieldsEmptyNonNil(t *testing.T) {
	_, svc := newPermissionFixture()

	ids, err := svc.AccessibleCollectionIDs(7)
	require.NoError(t, err)
	require.NotNil(t, ids, "无可访问集合时返回空切片而非 nil，用于构造“匹配零个集合”的过滤范围")
	assert.Empty(t, ids)
}
