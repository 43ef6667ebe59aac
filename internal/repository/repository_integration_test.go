//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"virkum-respond/internal/database"
	"virkum-respond/internal/domain"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/worker"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type RepositorySuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pool        *pgxpool.Pool
	redisClient *redis.Client
	companies   repository.CompanyRepository
	tests       repository.TestRepository
	events      repository.EventStore
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	logger := zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("virkum_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	dsn, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	s.pool, err = pgxpool.New(s.ctx, dsn)
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.NewMigrator(s.pool).Up(s.ctx), "Failed to run migrations")

	s.rdContainer, err = tcredis.Run(s.ctx, "redis:7-alpine")
	require.NoError(s.T(), err, "Failed to start redis container")
	redisURL, err := s.rdContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	opts, err := redis.ParseURL(redisURL)
	require.NoError(s.T(), err)
	s.redisClient = redis.NewClient(opts)

	s.companies = repository.NewPgCompanyRepository(s.pool, logger)
	s.tests = repository.NewPgTestRepository(s.pool, logger)
	s.events = repository.NewRedisEventStore(s.redisClient, time.Hour, logger)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE companies, tests, email_test_runs RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func (s *RepositorySuite) TestCompanies() {
	acme, err := s.companies.Create(s.ctx, domain.Company{Name: " Acme ", URL: "https://acme.test"})
	s.Require().NoError(err)
	s.Equal("Acme", acme.Name)
	s.NotZero(acme.ID)

	_, err = s.companies.Create(s.ctx, domain.Company{Name: "ACME"})
	s.ErrorIs(err, domain.ErrAlreadyExists)

	res, err := s.companies.Import(s.ctx, []domain.Company{{Name: "acme"}, {Name: "Beta"}, {Name: "beta "}, {Name: ""}})
	s.Require().NoError(err)
	s.Equal(repository.ImportResult{Inserted: 1, Skipped: 3}, res)

	list, err := s.companies.List(s.ctx)
	s.Require().NoError(err)
	s.Len(list, 2)

	got, err := s.companies.Get(s.ctx, acme.ID)
	s.Require().NoError(err)
	s.Equal("https://acme.test", got.URL)

	s.Require().NoError(s.companies.Delete(s.ctx, acme.ID))
	s.ErrorIs(s.companies.Delete(s.ctx, acme.ID), domain.ErrNotFound)
	_, err = s.companies.Get(s.ctx, acme.ID)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *RepositorySuite) TestSaveAndReadRun() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	grade := 0.7
	report := &domain.RunReport{
		Summary: domain.RunSummary{
			RunID:            uuid.New(),
			Companies:        []string{"Acme"},
			StartedAt:        now,
			FinishedAt:       now.Add(time.Second),
			NumEmails:        2,
			TotalRequests:    2,
			ConcurrencyLevel: 2,
			AvgReplyGrade:    &grade,
			SuccessCount:     1,
			FailureCount:     1,
		},
		Tasks: []domain.TaskResult{
			{
				Index: 0, Company: domain.Company{ID: 1, Name: "Acme"}, Mode: domain.ModeColdOutreach,
				Generation: &domain.GenerationResult{Subject: "Hi", Body: "Body", Grade: &grade, Model: "m", Latency: 1500 * time.Millisecond},
				Send:       &domain.SendOutcome{}, StartedAt: now, FinishedAt: now,
			},
			{
				Index: 1, Company: domain.Company{Name: "Acme"}, Mode: domain.ModeDirectReply,
				Failure:   domain.NewGenerationFailure(domain.ReasonTimeout, nil),
				StartedAt: now, FinishedAt: now,
			},
		},
	}

	testID, err := s.tests.Save(s.ctx, report)
	s.Require().NoError(err)
	s.NotZero(testID)

	_, err = s.tests.Save(s.ctx, report)
	s.ErrorIs(err, domain.ErrAlreadyExists)

	summary, err := s.tests.Get(s.ctx, testID)
	s.Require().NoError(err)
	s.Equal(report.Summary.RunID, summary.RunID)
	s.Equal([]string{"Acme"}, summary.Companies)
	s.Require().NotNil(summary.AvgReplyGrade)
	s.InDelta(0.7, *summary.AvgReplyGrade, 1e-9)

	list, err := s.tests.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(list, 1)

	tasks, err := s.tests.ListTasks(s.ctx, testID)
	s.Require().NoError(err)
	s.Require().Len(tasks, 2)
	s.Equal(int64(1500), tasks[0].LatencyMs)
	s.Require().NotNil(tasks[0].CompanyID)
	s.Nil(tasks[1].CompanyID)
	s.Nil(tasks[1].Grade)
	s.Equal("timeout", tasks[1].FailureReason)

	_, err = s.tests.ListTasks(s.ctx, testID+100)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *RepositorySuite) TestEventStore() {
	runID := uuid.New()
	log := worker.NewEventLog()
	log.Append(worker.Event{Kind: worker.EventRunStarted, RunID: runID})
	log.Append(worker.Event{Kind: worker.EventRunFinished, RunID: runID})

	s.Require().NoError(s.events.Append(s.ctx, runID, log.Since(0)))
	events, err := s.events.List(s.ctx, runID, 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(worker.EventRunFinished, events[0].Kind)

	_, err = s.events.GetSummary(s.ctx, runID)
	s.ErrorIs(err, domain.ErrNotFound)
	s.Require().NoError(s.events.SaveSummary(s.ctx, domain.RunSummary{RunID: runID, TotalRequests: 3}))
	summary, err := s.events.GetSummary(s.ctx, runID)
	s.Require().NoError(err)
	s.Equal(3, summary.TotalRequests)
}
