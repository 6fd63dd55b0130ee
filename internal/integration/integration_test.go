package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/postgres"
	infraredis "trivia-quiz-service/internal/infra/redis"
)

func TestPostgresBackedQuizSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	if _, err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run must be a no-op.
	if _, err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	fetcher := &staticFetcher{records: sampleRecords()}
	first := app.NewQuizService(fetcher, app.NewQuestionCache(store.Slots(), nil), store.Scores(), app.Options{})
	if _, err := first.Start(ctx, 9); err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, err := first.SelectAnswer(ctx, 0, "paris")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !outcome.Correct || outcome.Score.TotalAnswers != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	first.Close()

	second := app.NewQuizService(fetcher, app.NewQuestionCache(store.Slots(), nil), store.Scores(), app.Options{})
	defer second.Close()
	view, err := second.Resume(ctx, 9)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected resume from postgres without fetching, calls=%d", fetcher.calls)
	}
	if !view.Questions[0].Completed || view.CurrentIndex != 1 {
		t.Fatalf("expected answered first question, got %+v", view)
	}
	if got := second.Score(ctx); got != (domain.ScoreRecord{TotalAnswers: 1, CorrectAnswers: 1}) {
		t.Fatalf("unexpected score %+v", got)
	}
}

func TestPostgresScoreLedgerConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	if _, err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	ledger := postgres.NewStore(pool).Scores()
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ledger.Increment(ctx, i%5 == 0); err != nil {
				t.Errorf("increment: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := ledger.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (domain.ScoreRecord{TotalAnswers: 25, CorrectAnswers: 5, IncorrectAnswers: 20}) {
		t.Fatalf("unexpected score %+v", got)
	}
	if err := ledger.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got, _ := ledger.Get(ctx); got != (domain.ScoreRecord{}) {
		t.Fatalf("expected zero after reset, got %+v", got)
	}
}

func TestRedisBackedCacheAndScore(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	fetcher := &staticFetcher{records: sampleRecords()}
	slots := infraredis.NewSlotStore(client, 5*time.Minute)
	ledger := infraredis.NewScoreLedger(client)

	service := app.NewQuizService(fetcher, app.NewQuestionCache(slots, nil), ledger, app.Options{})
	defer service.Close()
	if _, err := service.Start(ctx, 22); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SelectAnswer(ctx, 0, "Berlin"); err != nil {
		t.Fatalf("select: %v", err)
	}

	slot, ok, err := slots.LoadSlot(ctx)
	if err != nil || !ok {
		t.Fatalf("load slot: ok=%v err=%v", ok, err)
	}
	if slot.CategoryID != 22 || slot.Questions[0].SelectedAnswer != "Berlin" {
		t.Fatalf("unexpected slot %+v", slot)
	}
	if got := service.Score(ctx); got != (domain.ScoreRecord{TotalAnswers: 1, IncorrectAnswers: 1}) {
		t.Fatalf("unexpected score %+v", got)
	}
}

type staticFetcher struct {
	mu      sync.Mutex
	calls   int
	records []domain.QuestionRecord
}

func (f *staticFetcher) FetchQuestions(context.Context, int, int) ([]domain.QuestionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, nil
}

func sampleRecords() []domain.QuestionRecord {
	return []domain.QuestionRecord{
		{Question: "Capital of France?", CorrectAnswer: "Paris", IncorrectAnswers: []string{"Berlin", "Rome", "Madrid"}},
		{Question: "2 + 2?", CorrectAnswer: "4", IncorrectAnswers: []string{"3", "5"}},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
