package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
	"github.com/NicolasCavalcanti/trekko-website/pkg/testutil"
)

const insertUser = `INSERT INTO users (id, name, email, password_hash, password_algo, user_type, cadastur_number, is_active, created_at, updated_at)
	VALUES (?, ?, ?, 'h', 'a', ?, ?, ?, ?, ?)`

func insert(ctx context.Context, ex sqlx.ExecerContext, id int64, email, userType string, cert *string) error {
	now := time.Now().UTC()
	_, err := ex.ExecContext(ctx, insertUser, id, "Someone", email, userType, cert, true, now, now)
	return err
}

func countUsers(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(1) FROM users`))
	return n
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		err := database.WithTx(ctx, db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
			return insert(ctx, tx, 1, "a@example.com", "trekker", nil)
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countUsers(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		boom := errors.New("boom")
		err := database.WithTx(ctx, db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
			require.NoError(t, insert(ctx, tx, 1, "a@example.com", "trekker", nil))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countUsers(t, db))
	})

	t.Run("rolls back and rethrows on panic", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = database.WithTx(ctx, db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
				require.NoError(t, insert(ctx, tx, 1, "a@example.com", "trekker", nil))
				panic("kaboom")
			})
		})
		assert.Equal(t, 0, countUsers(t, db))
	})
}

func TestUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	cert := "123456789"

	require.NoError(t, insert(ctx, db, 1, "a@example.com", "guia", &cert))

	t.Run("sqlite email index", func(t *testing.T) {
		err := insert(ctx, db, 2, "a@example.com", "trekker", nil)
		require.Error(t, err)
		target, ok := database.UniqueViolation(err)
		require.True(t, ok)
		assert.Contains(t, target, "email")
	})

	t.Run("sqlite active certificate index", func(t *testing.T) {
		err := insert(ctx, db, 3, "b@example.com", "guia", &cert)
		require.Error(t, err)
		target, ok := database.UniqueViolation(err)
		require.True(t, ok)
		assert.Contains(t, target, "cadastur")
	})

	t.Run("check constraint is not a unique violation", func(t *testing.T) {
		other := "999888777"
		err := insert(ctx, db, 4, "c@example.com", "trekker", &other)
		require.Error(t, err)
		_, ok := database.UniqueViolation(err)
		assert.False(t, ok)
	})

	t.Run("postgres error codes", func(t *testing.T) {
		target, ok := database.UniqueViolation(&pq.Error{Code: "23505", Constraint: "idx_users_email"})
		assert.True(t, ok)
		assert.Equal(t, "idx_users_email", target)

		_, ok = database.UniqueViolation(&pq.Error{Code: "23514", Constraint: "chk_users_cadastur_role"})
		assert.False(t, ok)
	})

	t.Run("other errors", func(t *testing.T) {
		_, ok := database.UniqueViolation(errors.New("nope"))
		assert.False(t, ok)
	})
}
