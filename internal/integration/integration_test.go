package integration

import (
	"context"
	"database/sql"
	"fmt"
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

	"quizpack/internal/app"
	"quizpack/internal/domain"
	"quizpack/internal/infra/postgres"
	pgmigrations "quizpack/internal/infra/postgres/migrations"
	infraredis "quizpack/internal/infra/redis"
)

const uploadedPack = `{"packId":"custom-science","packName":"Custom Science","categories":{"science":{"questions":[
	{"id":"c1","text":"H2O is?","options":["Water","Salt"],"correctIndex":0,"category":"science","difficulty":"easy","points":10},
	{"id":"c2","text":"NaCl is?","options":["Water","Salt"],"correctIndex":1,"category":"science","difficulty":"hard","points":30}
]}}}`

func TestSessionAcrossRestartsPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	exerciseStore(t, ctx, postgres.NewStore(pool))
}

func TestSessionAcrossRestartsRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	exerciseStore(t, ctx, infraredis.NewStore(redisClient))
}

// exerciseStore uploads a pack, plays half a session, then rebuilds every component over
// the same store and finishes the session from its snapshot.
func exerciseStore(t *testing.T, ctx context.Context, store app.Store) {
	t.Helper()
	clock := time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	resolver := app.NewPackResolver(store, nil, app.ResolverOptions{Clock: now})
	if _, err := resolver.LoadUploadedPack(ctx, []byte(uploadedPack)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	tracker := app.NewTrackerWithClock(store, nil, now)
	player := app.NewPlayer(app.NewEngine(), resolver, tracker, app.StaticAuth{}, app.PlayerOptions{})

	q, err := player.Start(ctx, app.StartOptions{Category: "science", ShuffleOptions: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if q.ID != "c1" {
		t.Fatalf("expected easy question first, got %s", q.ID)
	}
	if _, err := player.Answer(ctx, q.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := player.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}

	restarted := app.NewPackResolver(store, nil, app.ResolverOptions{Clock: now})
	report, err := restarted.LoadCachedPacks(ctx, app.StaticAuth{})
	if err != nil {
		t.Fatalf("load cached: %v", err)
	}
	if len(report.Loaded) != 1 || report.Loaded[0] != "custom-science" {
		t.Fatalf("expected uploaded pack restored, got %+v", report)
	}
	resumed := app.NewPlayer(app.NewEngine(), restarted, app.NewTrackerWithClock(store, nil, now), app.StaticAuth{}, app.PlayerOptions{})
	q, err = resumed.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if q.ID != "c2" {
		t.Fatalf("expected to resume on c2, got %s", q.ID)
	}
	if _, err := resumed.Answer(ctx, q.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}
	step, err := resumed.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !step.Complete || step.Results.Score != 40 || step.Results.Percentage != 100 {
		t.Fatalf("unexpected results %+v", step.Results)
	}

	scores, err := tracker.HighScores(ctx)
	if err != nil {
		t.Fatalf("high scores: %v", err)
	}
	if scores["science"].Score != 40 {
		t.Fatalf("expected stored high score 40, got %+v", scores)
	}
	var snap domain.Snapshot
	if ok, _ := store.LoadJSON(ctx, app.KeyIncompleteSession, &snap); ok {
		t.Fatalf("expected snapshot cleared after completion")
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

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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
