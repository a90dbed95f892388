//go:build integration

package cadastur_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	dbtest "github.com/NicolasCavalcanti/trekko-website/pkg/testutil"
	"github.com/NicolasCavalcanti/trekko-website/pkg/testutil/containers"
)

type countingLookup struct {
	cadastur.Lookup
	finds int
}

func (c *countingLookup) FindByCertificate(ctx context.Context, raw string) (*entity.Guide, error) {
	c.finds++
	return c.Lookup.FindByCertificate(ctx, raw)
}

type CachedLookupSuite struct {
	suite.Suite
	client *redis.Client
}

func TestCachedLookupSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedLookupSuite))
}

func (s *CachedLookupSuite) SetupSuite() {
	s.client = containers.NewRedis(s.T())
}

func (s *CachedLookupSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *CachedLookupSuite) newLookup() (*countingLookup, *cadastur.CachedLookup) {
	db := dbtest.NewSQLiteDB(s.T())
	r := repo.NewGuideRepo(db)
	g := entity.Guide{Certificate: "21000936102", Name: "José da Silva", State: "SP"}
	s.Require().NoError(r.Upsert(context.Background(), &g))

	counting := &countingLookup{Lookup: r}
	cached, ok := cadastur.NewCachedLookup(counting, s.client, time.Minute, zap.NewNop().Sugar()).(*cadastur.CachedLookup)
	s.Require().True(ok)
	return counting, cached
}

func (s *CachedLookupSuite) TestReadThrough() {
	ctx := context.Background()
	counting, cached := s.newLookup()

	for i := 0; i < 3; i++ {
		g, err := cached.FindByCertificate(ctx, "210.009.361-02")
		s.Require().NoError(err)
		s.Require().NotNil(g)
		s.Equal("José da Silva", g.Name)
	}
	s.Equal(1, counting.finds)

	ttl, err := s.client.TTL(ctx, "cadastur:guide:21000936102").Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}

func (s *CachedLookupSuite) TestMissesAreNotCached() {
	ctx := context.Background()
	counting, cached := s.newLookup()

	for i := 0; i < 2; i++ {
		g, err := cached.FindByCertificate(ctx, "99999")
		s.Require().NoError(err)
		s.Nil(g)
	}
	s.Equal(2, counting.finds)
}

func (s *CachedLookupSuite) TestFlush() {
	ctx := context.Background()
	counting, cached := s.newLookup()

	_, err := cached.FindByCertificate(ctx, "21000936102")
	s.Require().NoError(err)

	n, err := cached.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = cached.FindByCertificate(ctx, "21000936102")
	s.Require().NoError(err)
	s.Equal(2, counting.finds)
}

func (s *CachedLookupSuite) TestCorruptEntryFallsBack() {
	ctx := context.Background()
	counting, cached := s.newLookup()
	s.Require().NoError(s.client.Set(ctx, "cadastur:guide:21000936102", "{not json", time.Minute).Err())

	g, err := cached.FindByCertificate(ctx, "21000936102")
	s.Require().NoError(err)
	s.Equal("José da Silva", g.Name)
	s.Equal(1, counting.finds)
}
