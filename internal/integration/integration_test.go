package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
	pgstore "trivia-session-service/internal/infra/postgres"
	pgmigrations "trivia-session-service/internal/infra/postgres/migrations"
	infraredis "trivia-session-service/internal/infra/redis"
)

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	catalog := pgstore.NewCatalog(pool)
	items, err := catalog.PowerUps(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(items) != 11 {
		t.Fatalf("expected 11 seeded power-ups, got %d", len(items))
	}

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	registry := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	snapshots := infraredis.NewSnapshotStore(redisClient)
	reports := pgstore.NewReportSink(pool)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := app.NewGameService(registry, quizRepo, catalog, app.Options{
		Snapshots: snapshots,
		Reports:   reports,
		Logger:    logger,
		Rules:     app.Rules{StarterInventory: -1, LootChance: -1},
	})

	const contextID = "channel-42"
	if _, err := service.CreateSession(ctx, contextID, "Arithmetic"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if n, err := redisClient.Exists(ctx, "trivia:session:"+contextID).Result(); err != nil || n != 1 {
		t.Fatalf("expected session marker in redis, got n=%d err=%v", n, err)
	}
	if _, err := service.Join(ctx, contextID, "u1", "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Join(ctx, contextID, "u2", "Bob", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := service.Start(ctx, contextID); err != nil {
		t.Fatalf("start: %v", err)
	}

	view, err := service.OpenBoard(ctx, contextID, "u1")
	if err != nil {
		t.Fatalf("open board: %v", err)
	}
	display := -1
	for _, opt := range view.Options {
		if opt.Text == "4" {
			display = opt.Display
		}
	}
	out, err := service.Select(ctx, contextID, "u1", view.Board, display)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if out.Resolution == nil || !out.Resolution.Correct || out.Resolution.Points < 990 {
		t.Fatalf("expected a fast correct answer, got %+v", out.Resolution)
	}

	persister := app.NewPersister(service, snapshots, time.Minute, logger)
	if err := persister.SnapshotAll(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	stored, err := snapshots.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if _, ok := stored[contextID]; !ok {
		t.Fatalf("expected snapshot for %s, got %d entries", contextID, len(stored))
	}

	summary, err := service.Finish(ctx, contextID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(summary.Players) != 2 || summary.Players[0].UserID != "u1" {
		t.Fatalf("expected alice ranked first, got %+v", summary.Players)
	}

	stored, err = snapshots.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected snapshot dropped after finish, got %d", len(stored))
	}

	var sessions, players, answers int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM report_sessions WHERE context_id = $1`, contextID).Scan(&sessions); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM report_players`).Scan(&players); err != nil {
		t.Fatalf("count players: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM report_answers WHERE correct`).Scan(&answers); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if sessions != 1 || players != 2 || answers != 1 {
		t.Fatalf("unexpected report rows: sessions=%d players=%d answers=%d", sessions, players, answers)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Name:      "Arithmetic",
		CreatorID: "host-1",
		Questions: []domain.Question{
			{
				Text:           "What is 2 + 2?",
				Options:        []string{"3", "4", "5", "22"},
				CorrectIndices: []int{1},
				TimeLimit:      30,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
