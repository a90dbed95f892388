package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/NicolasCavalcanti/trekko-website/internal/user/entity"
	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
)

var (
	ErrDuplicateEmail   = errors.New("email is already in use")
	ErrCertificateInUse = errors.New("registry number is already in use by another user")
)

const userColumns = `id, name, email, password_hash, password_algo, user_type,
	cadastur_number, is_active, created_at, updated_at`

// UserRepo provides data access for the users table using sqlx. It works on
// a *sqlx.DB or a *sqlx.Tx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. The ID and timestamps must already be set.
// Unique-index violations come back as ErrDuplicateEmail or
// ErrCertificateInUse.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :email, :password_hash, :password_algo, :user_type,
			:cadastur_number, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, u); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	target, ok := database.UniqueViolation(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(target, "email"):
		return ErrDuplicateEmail
	case strings.Contains(target, "cadastur"):
		return ErrCertificateInUse
	}
	return err
}

// EmailExists reports whether any account, active or not, uses email.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	q := r.db.Rebind(`SELECT COUNT(1) FROM users WHERE email = ?`)
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, q, email); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByEmail returns a user matched by email or sql.ErrNoRows. Emails are
// stored lowercased, so callers pass the normalized form.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, q, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns every user, oldest first.
func (r *UserRepo) List(ctx context.Context) ([]*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	out := []*entity.User{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate marks a user inactive as of at, releasing any certificate it
// holds.
func (r *UserRepo) Deactivate(ctx context.Context, id int64, at time.Time) error {
	q := r.db.Rebind(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, false, at, id)
	return err
}
