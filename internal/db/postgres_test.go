package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JR-coderli/EFsafari/internal/models"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &Postgres{DB: conn}, mock
}

func TestLoadUsers(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT id, username, display_name, role, keywords, active FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "display_name", "role", "keywords", "active"}).
			AddRow("u1", "alice", "Alice", "ops", "{US,tier1}", true).
			AddRow("u2", "bob", "", "admin", "{}", false))

	users, err := p.LoadUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, []string{"US", "tier1"}, users[0].Keywords)
	assert.Equal(t, "ops", users[0].Role)
	assert.False(t, users[1].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUserAssignsID(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "carol", "Carol", "business", pq.Array([]string{"shop"}), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := models.User{Username: "carol", DisplayName: "Carol", Role: "business", Keywords: []string{" shop ", ""}, Active: true}
	require.NoError(t, p.InsertUser(context.Background(), &u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, []string{"shop"}, u.Keywords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingUser(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec(`UPDATE users SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM users`).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, p.UpdateUser(context.Background(), models.User{ID: "nope"}), ErrUserNotFound)
	assert.ErrorIs(t, p.DeleteUser(context.Background(), "nope"), ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
