package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
	cadasturrepo "github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	"github.com/NicolasCavalcanti/trekko-website/internal/metrics"
	"github.com/NicolasCavalcanti/trekko-website/internal/user"
	userentity "github.com/NicolasCavalcanti/trekko-website/internal/user/entity"
	dbtest "github.com/NicolasCavalcanti/trekko-website/pkg/testutil"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// seedRegistry loads the guides every user test relies on.
func seedRegistry(t testing.TB, db *sqlx.DB) {
	t.Helper()
	valid := "2030-01-31"
	expired := "2024-03-01"
	guides := []entity.Guide{
		{Certificate: "21000936102", Name: "José da Silva", ValidUntil: &valid},
		{Certificate: "21000936103", Name: "Maria Souza"},
		{Certificate: "21000936104", Name: "Ana Lima", ValidUntil: &expired},
	}
	r := cadasturrepo.NewGuideRepo(db)
	for i := range guides {
		if err := r.Upsert(context.Background(), &guides[i]); err != nil {
			t.Fatalf("seed registry: %v", err)
		}
	}
}

type UserServiceSuite struct {
	suite.Suite
	db      *sqlx.DB
	svc     *user.UserService
	metrics *metrics.Metrics
	ctx     context.Context
	now     time.Time
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.NewSQLiteDB(s.T())
	seedRegistry(s.T(), s.db)

	ids, err := utilities.NewIDGenerator(1)
	s.Require().NoError(err)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = fixedNow
	s.svc = user.NewUserService(s.db, ids,
		user.WithMetrics(s.metrics),
		user.WithHasher(user.PBKDF2Hasher{Iterations: 1000}),
		user.WithClock(func() time.Time { return s.now }),
	)
}

func (s *UserServiceSuite) register(in user.RegisterInput) (*userentity.User, error) {
	return s.svc.Register(s.ctx, in)
}

func trekker(email string) user.RegisterInput {
	return user.RegisterInput{Name: "Trekker", Email: email, Password: "secret1", UserType: userentity.TypeTrekker}
}

func guide(email, number string) user.RegisterInput {
	return user.RegisterInput{Name: "José da Silva", Email: email, Password: "secret1", UserType: userentity.TypeGuide, CadasturNumber: number}
}

func (s *UserServiceSuite) TestRegisterTrekker() {
	in := trekker("  Hiker@Example.COM ")
	in.CadasturNumber = "21000936102"

	u, err := s.register(in)
	s.Require().NoError(err)
	s.NotZero(u.ID)
	s.Equal("hiker@example.com", u.Email)
	s.Nil(u.CadasturNumber, "trekkers never hold a registry number")
	s.True(u.IsActive)
	s.True(fixedNow.Equal(u.CreatedAt))
	s.Equal("pbkdf2-sha256:1000", u.PasswordAlgo)
	s.NotContains(u.PasswordHash, "secret1")

	s.Equal(1.0, testutil.ToFloat64(s.metrics.UsersRegistered.WithLabelValues(userentity.TypeTrekker)))
}

func (s *UserServiceSuite) TestRegisterDuplicateEmail() {
	_, err := s.register(trekker("dup@example.com"))
	s.Require().NoError(err)

	_, err = s.register(trekker("DUP@example.com"))
	s.ErrorIs(err, user.ErrDuplicateEmail)

	users, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 1)
}

func (s *UserServiceSuite) TestRegisterGuide() {
	u, err := s.register(guide("guide@example.com", "210.009.361-02"))
	s.Require().NoError(err)
	s.Require().NotNil(u.CadasturNumber)
	s.Equal("21000936102", *u.CadasturNumber, "the canonical number is stored")

	s.Run("second claim fails availability", func() {
		_, err := s.register(guide("other@example.com", "21000936102"))
		var verr *cadastur.ValidationError
		s.Require().ErrorAs(err, &verr)
		s.Equal("availability", verr.Stage)
		s.Equal(cadastur.MsgInUse, verr.Reason)
	})

	s.Run("deactivation releases the number", func() {
		_, err := s.svc.Deactivate(s.ctx, u.ID)
		s.Require().NoError(err)
		_, err = s.register(guide("again@example.com", "21000936102"))
		s.NoError(err)
	})

	s.Equal(2.0, testutil.ToFloat64(s.metrics.UsersRegistered.WithLabelValues(userentity.TypeGuide)))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.CadasturValidations.WithLabelValues(metrics.OutcomeValid)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CadasturValidations.WithLabelValues(metrics.OutcomeInvalid)))
}

func (s *UserServiceSuite) TestRegisterGuideRejected() {
	cases := []struct {
		name, number, reason string
	}{
		{"missing number", "", cadastur.MsgRequired},
		{"repeated digits", "000000000", cadastur.MsgRepeated},
		{"unknown number", "12345678", cadastur.MsgNotFound},
		{"expired", "21000936104", "certificate expired on 01/03/2024"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.register(guide("g@example.com", tc.number))
			var verr *cadastur.ValidationError
			s.Require().ErrorAs(err, &verr)
			s.Equal(tc.reason, verr.Reason)
		})
	}

	users, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(users, "rejected registrations leave nothing behind")
}

func (s *UserServiceSuite) TestRegisterGuideNameMatch() {
	ids, err := utilities.NewIDGenerator(2)
	s.Require().NoError(err)
	svc := user.NewUserService(s.db, ids,
		user.WithHasher(user.PBKDF2Hasher{Iterations: 1000}),
		user.WithClock(func() time.Time { return fixedNow }),
		user.WithConfig(user.Config{RequireNameMatch: true}),
	)

	in := guide("maria@example.com", "21000936103")
	_, err = svc.Register(s.ctx, in)
	var verr *cadastur.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal(cadastur.MsgNameMismatch, verr.Reason)

	in.Name = "MARIA SOUZA"
	_, err = svc.Register(s.ctx, in)
	s.NoError(err)
}

func (s *UserServiceSuite) TestRegisterInvalidUserType() {
	in := trekker("x@example.com")
	in.UserType = "admin"
	_, err := s.register(in)
	s.ErrorIs(err, user.ErrInvalidUserType)
}

func (s *UserServiceSuite) TestDeactivate() {
	created, err := s.register(trekker("leaving@example.com"))
	s.Require().NoError(err)

	s.now = fixedNow.Add(36 * time.Hour)
	u, err := s.svc.Deactivate(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, u.ID)
	s.False(u.IsActive)
	s.True(fixedNow.Equal(u.CreatedAt))
	s.True(s.now.Equal(u.UpdatedAt), "updated_at follows the service clock, got %s", u.UpdatedAt)

	_, err = s.svc.Deactivate(s.ctx, created.ID+1)
	s.ErrorIs(err, user.ErrNotFound)
}

func (s *UserServiceSuite) TestAuthenticatePassword() {
	created, err := s.register(trekker("login@example.com"))
	s.Require().NoError(err)

	s.Run("success, email case-insensitive", func() {
		u, err := s.svc.AuthenticatePassword(s.ctx, " LOGIN@example.com", "secret1")
		s.Require().NoError(err)
		s.Equal(created.ID, u.ID)
	})

	s.Run("wrong password", func() {
		_, err := s.svc.AuthenticatePassword(s.ctx, "login@example.com", "nope")
		s.ErrorIs(err, user.ErrBadCredentials)
	})

	s.Run("unknown email", func() {
		_, err := s.svc.AuthenticatePassword(s.ctx, "ghost@example.com", "secret1")
		s.ErrorIs(err, user.ErrBadCredentials)
	})

	s.Run("deactivated", func() {
		_, err := s.svc.Deactivate(s.ctx, created.ID)
		s.Require().NoError(err)
		_, err = s.svc.AuthenticatePassword(s.ctx, "login@example.com", "secret1")
		s.ErrorIs(err, user.ErrDisabled)

		_, err = s.svc.AuthenticatePassword(s.ctx, "login@example.com", "wrong")
		s.ErrorIs(err, user.ErrBadCredentials, "a wrong password never reveals the account state")
	})
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CADASTUR_REQUIRE_NAME_MATCH", "TRUE")
	if !user.ConfigFromEnv().RequireNameMatch {
		t.Fatal("expected name match to be required")
	}
	t.Setenv("CADASTUR_REQUIRE_NAME_MATCH", "")
	if user.ConfigFromEnv().RequireNameMatch {
		t.Fatal("expected name match to be optional by default")
	}
}
