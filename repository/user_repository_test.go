package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"trackvault/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserRepo(t *testing.T) (UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewMySQLUserRepository(db), mock, db
}

func TestCreateUser_Success(t *testing.T) {
	repo, mock, db := newTestUserRepo(t)
	defer db.Close()

	user := &model.User{
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$hash",
		Name:         "Alice",
	}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.Email, user.PasswordHash, user.Name, user.Bio, user.AvatarPath).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.CreateUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, mock, db := newTestUserRepo(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := repo.CreateUser(context.Background(), &model.User{Email: "alice@example.com"})
	assert.True(t, errors.Is(err, ErrDuplicateUser))
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	repo, mock, db := newTestUserRepo(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.GetUserByEmail(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetUserByEmail_Found(t *testing.T) {
	repo, mock, db := newTestUserRepo(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "bio", "avatar_path", "created_at", "updated_at"}).
		AddRow(3, "alice@example.com", "hash", "Alice", nil, nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	user, err := repo.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(3), user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.False(t, user.Bio.Valid)
}

func TestUpdateProfile(t *testing.T) {
	repo, mock, db := newTestUserRepo(t)
	defer db.Close()

	bio := sql.NullString{String: "new bio", Valid: true}
	mock.ExpectExec("UPDATE users SET name").
		WithArgs("New Name", bio, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateProfile(context.Background(), 3, "New Name", bio)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
