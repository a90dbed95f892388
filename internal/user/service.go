package user

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	cadasturrepo "github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	"github.com/NicolasCavalcanti/trekko-website/internal/metrics"
	"github.com/NicolasCavalcanti/trekko-website/internal/user/entity"
	userrepo "github.com/NicolasCavalcanti/trekko-website/internal/user/repo"
	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

var (
	ErrDisabled         = errors.New("account is deactivated")
	ErrBadCredentials   = errors.New("incorrect email or password")
	ErrDuplicateEmail   = userrepo.ErrDuplicateEmail
	ErrCertificateInUse = userrepo.ErrCertificateInUse
	ErrInvalidUserType  = errors.New("invalid user type")
	ErrNotFound         = errors.New("user not found")
)

type Config struct {
	// RequireNameMatch makes guide registration check the account name
	// against the registry entry.
	RequireNameMatch bool
}

// ConfigFromEnv reads CADASTUR_REQUIRE_NAME_MATCH.
func ConfigFromEnv() Config {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CADASTUR_REQUIRE_NAME_MATCH")))
	return Config{RequireNameMatch: v == "1" || v == "true"}
}

// UserService orchestrates registration and authentication flows.
type UserService struct {
	db      *sqlx.DB
	repo    *userrepo.UserRepo
	hasher  PasswordHasher
	ids     *utilities.IDGenerator
	metrics *metrics.Metrics
	now     func() time.Time
	cfg     Config
}

type Option func(*UserService)

func WithMetrics(m *metrics.Metrics) Option { return func(s *UserService) { s.metrics = m } }

func WithHasher(h PasswordHasher) Option { return func(s *UserService) { s.hasher = h } }

// WithClock overrides the time source for timestamps and certificate expiry.
func WithClock(now func() time.Time) Option { return func(s *UserService) { s.now = now } }

func WithConfig(cfg Config) Option { return func(s *UserService) { s.cfg = cfg } }

func NewUserService(db *sqlx.DB, ids *utilities.IDGenerator, opts ...Option) *UserService {
	s := &UserService{
		db:     db,
		repo:   userrepo.NewUserRepo(db),
		hasher: PBKDF2Hasher{},
		ids:    ids,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput is a structurally valid registration request.
type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	UserType       string
	CadasturNumber string
}

// Register creates an account. For guides the registry number is validated
// inside the same transaction as the insert, and the canonical number is
// stored. Returns *cadastur.ValidationError when the number is rejected.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if !entity.ValidUserType(in.UserType) {
		return nil, ErrInvalidUserType
	}
	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	u := &entity.User{
		ID:           s.ids.Next(),
		Name:         strings.TrimSpace(in.Name),
		Email:        NormalizeEmail(in.Email),
		PasswordHash: hash,
		PasswordAlgo: algo,
		UserType:     in.UserType,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		users := userrepo.NewUserRepo(tx)
		exists, err := users.EmailExists(ctx, u.Email)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateEmail
		}

		if u.IsGuide() {
			v := cadastur.NewValidator(cadasturrepo.NewGuideRepo(tx), cadastur.WithClock(s.now))
			res, err := v.Validate(ctx, cadastur.Request{
				Number:           in.CadasturNumber,
				Name:             u.Name,
				RequireNameMatch: s.cfg.RequireNameMatch,
			})
			if err != nil {
				s.metrics.CadasturValidated(metrics.OutcomeError)
				return err
			}
			if !res.Valid {
				s.metrics.CadasturValidated(metrics.OutcomeInvalid)
				return res.Err()
			}
			s.metrics.CadasturValidated(metrics.OutcomeValid)
			u.CadasturNumber = &res.Certificate
		}

		return users.Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.UserRegistered(u.UserType)
	return u, nil
}

// AuthenticatePassword checks email and password. Unknown emails and wrong
// passwords both yield ErrBadCredentials; a correct password on a
// deactivated account yields ErrDisabled.
func (s *UserService) AuthenticatePassword(ctx context.Context, email, password string) (*entity.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !u.IsActive {
		return nil, ErrDisabled
	}
	return u, nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]*entity.User, error) {
	return s.repo.List(ctx)
}

// Deactivate disables an account and returns it as stored; its registry
// number becomes claimable. Unknown ids yield ErrNotFound.
func (s *UserService) Deactivate(ctx context.Context, id int64) (*entity.User, error) {
	var u *entity.User
	err := database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		users := userrepo.NewUserRepo(tx)
		if _, err := users.GetByID(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := users.Deactivate(ctx, id, s.now().UTC().Truncate(time.Microsecond)); err != nil {
			return err
		}
		var err error
		u, err = users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
