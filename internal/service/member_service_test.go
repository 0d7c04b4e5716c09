package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
)

type mockMemberRepo struct {
	members  map[string]*models.Member
	lastList models.MemberFilter
	listHits int
}

func newMockMemberRepo(members ...*models.Member) *mockMemberRepo {
	repo := &mockMemberRepo{members: map[string]*models.Member{}}
	for _, m := range members {
		repo.members[m.ID] = m
	}
	return repo
}

func (m *mockMemberRepo) FindByID(ctx context.Context, id string) (*models.Member, error) {
	member, ok := m.members[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *member
	return &copied, nil
}

func (m *mockMemberRepo) FindByUserID(ctx context.Context, userID string) (*models.Member, error) {
	for _, member := range m.members {
		if member.UserID != nil && *member.UserID == userID {
			copied := *member
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockMemberRepo) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int, error) {
	m.lastList = filter
	m.listHits++
	var out []models.Member
	for _, member := range m.members {
		out = append(out, *member)
	}
	return out, len(out), nil
}

func (m *mockMemberRepo) Create(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	copied := *member
	m.members[member.ID] = &copied
	return nil
}

func (m *mockMemberRepo) Update(ctx context.Context, member *models.Member) error {
	copied := *member
	m.members[member.ID] = &copied
	return nil
}

func (m *mockMemberRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.members[id].Active = active
	return nil
}

func (m *mockMemberRepo) SetRole(ctx context.Context, id string, role models.MemberRole) error {
	m.members[id].Role = role
	return nil
}

func (m *mockMemberRepo) Delete(ctx context.Context, id string) error {
	m.members[id].Deleted = true
	m.members[id].Active = false
	return nil
}

func TestMemberServiceRegisterDefaults(t *testing.T) {
	repo := newMockMemberRepo()
	audit := &auditRecorder{}
	svc := NewMemberService(repo, audit, nil, zap.NewNop())

	member, err := svc.Register(context.Background(), "  Grace Hopper ", models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", member.Name)
	assert.Equal(t, models.MemberRegular, member.Role)
	assert.Equal(t, models.AccessReadWrite, member.AccessLevel)
	assert.True(t, member.Active)
	assert.Contains(t, repo.members, member.ID)
	assert.Equal(t, []string{models.AuditActionMemberCreate}, audit.actions())
}

func TestMemberServiceRegisterWithRoleValidation(t *testing.T) {
	svc := NewMemberService(newMockMemberRepo(), nil, nil, zap.NewNop())

	tests := []struct {
		name string
		req  CreateMemberRequest
	}{
		{name: "empty name", req: CreateMemberRequest{Name: ""}},
		{name: "numeric name", req: CreateMemberRequest{Name: "42"}},
		{name: "unknown role", req: CreateMemberRequest{Name: "Grace", Role: "GOLD"}},
		{name: "unknown access", req: CreateMemberRequest{Name: "Grace", AccessLevel: "ROOT"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterWithRole(context.Background(), tc.req, models.AuditMeta{})
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}

	member, err := svc.RegisterWithRole(context.Background(), CreateMemberRequest{Name: "Grace", Role: models.MemberPremium, AccessLevel: models.AccessReadOnly}, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.MemberPremium, member.Role)
	assert.Equal(t, models.AccessReadOnly, member.AccessLevel)
}

func TestMemberServiceTierAndStatus(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: "m1", Name: "Grace", Role: models.MemberRegular, AccessLevel: models.AccessReadWrite, Active: true})
	svc := NewMemberService(repo, nil, nil, zap.NewNop())
	ctx := context.Background()

	member, err := svc.UpgradeToPremium(ctx, "m1", models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.MemberPremium, member.Role)
	assert.Equal(t, models.MemberPremium, repo.members["m1"].Role)

	member, err = svc.DowngradeToRegular(ctx, "m1", models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.MemberRegular, member.Role)

	member, err = svc.Deactivate(ctx, "m1", models.AuditMeta{})
	require.NoError(t, err)
	assert.False(t, member.Active)

	canBorrow, err := svc.CanBorrow(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, canBorrow)

	_, err = svc.Activate(ctx, "m1", models.AuditMeta{})
	require.NoError(t, err)
	canBorrow, err = svc.CanBorrow(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, canBorrow)

	require.NoError(t, svc.Remove(ctx, "m1", models.AuditMeta{}))
	assert.True(t, repo.members["m1"].Deleted)
	assert.False(t, repo.members["m1"].Active)

	_, err = svc.UpgradeToPremium(ctx, "m1", models.AuditMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestMemberServiceMissingMember(t *testing.T) {
	svc := NewMemberService(newMockMemberRepo(), nil, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	canBorrow, err := svc.CanBorrow(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, canBorrow)

	_, err = svc.GetByUserID(context.Background(), "u-1")
	require.Error(t, err)
	assert.Equal(t, "no member is linked to this account", appErrors.FromError(err).Message)
}

func TestMemberServiceUpdate(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: "m1", Name: "Grace", Role: models.MemberRegular, AccessLevel: models.AccessReadWrite, Active: true})
	audit := &auditRecorder{}
	svc := NewMemberService(repo, audit, nil, zap.NewNop())

	member, err := svc.Update(context.Background(), "m1", UpdateMemberRequest{Name: "Grace B. Hopper", Role: models.MemberPremium, AccessLevel: models.AccessManage}, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Grace B. Hopper", repo.members["m1"].Name)
	assert.Equal(t, models.AccessManage, member.AccessLevel)
	require.Len(t, audit.logs, 1)
	assert.NotEmpty(t, audit.logs[0].OldValues)
}

func TestMemberServiceSearchByName(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: "m1", Name: "Grace", Active: true})
	svc := NewMemberService(repo, nil, nil, zap.NewNop())

	members, page, err := svc.SearchByName(context.Background(), "   ", models.MemberFilter{})
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, 0, page.TotalCount)
	assert.Zero(t, repo.listHits)

	members, _, err = svc.SearchByName(context.Background(), "gra", models.MemberFilter{})
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, "gra", repo.lastList.Search)

	_, _, err = svc.ListActive(context.Background(), models.MemberFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.NotNil(t, repo.lastList.Active)
	assert.True(t, *repo.lastList.Active)
	assert.False(t, repo.lastList.IncludeDeleted)
}
