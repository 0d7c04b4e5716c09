package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/booknova-api/internal/models"
)

var memberRowColumns = []string{"id", "name", "role", "access_level", "active", "deleted", "user_id", "created_at", "updated_at"}

func TestMemberFindByUserID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + memberColumns + " FROM members WHERE user_id = $1 AND deleted = FALSE")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(memberRowColumns).AddRow("m-1", "Ana", "PREMIUM", "READ_WRITE", true, false, "u-1", now, now))

	member, err := repo.FindByUserID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.MemberPremium, member.Role)
	require.NotNil(t, member.UserID)
	assert.Equal(t, "u-1", *member.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	role := models.MemberRegular
	active := true
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + memberColumns + " FROM members WHERE 1=1 AND deleted = FALSE AND role = $1 AND active = $2 AND LOWER(name) LIKE $3 ORDER BY name ASC LIMIT 10 OFFSET 10")).
		WithArgs(role, true, "%an%").
		WillReturnRows(sqlmock.NewRows(memberRowColumns).AddRow("m-1", "Ana", "REGULAR", "READ_WRITE", true, false, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM members WHERE 1=1 AND deleted = FALSE AND role = $1 AND active = $2 AND LOWER(name) LIKE $3")).
		WithArgs(role, true, "%an%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	members, total, err := repo.List(context.Background(), models.MemberFilter{
		Role: &role, Active: &active, Search: "an", Page: 2, PageSize: 10, SortBy: "name", SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Nil(t, members[0].UserID)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberSetRoleAndDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE members SET role = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("m-1", models.MemberPremium, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE members SET deleted = TRUE, active = FALSE")).
		WithArgs("m-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetRole(context.Background(), "m-1", models.MemberPremium))
	require.NoError(t, repo.Delete(context.Background(), "m-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
