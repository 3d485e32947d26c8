// Package itf provisions throwaway Postgres databases for integration tests.
package itf

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Dr1DeX/orgtree/migrations"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
)

const (
	maxDBNameLength  = 63
	hashSuffixLength = 9
)

var unsafeDBNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

// OnCI reports whether tests run in CI, where an unreachable database is a failure.
func OnCI() bool {
	return strings.TrimSpace(os.Getenv("CI")) != "" ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}

func CanDialPostgres() bool {
	cfg := configuration.Use()
	host := strings.TrimSpace(cfg.Database.Host)
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(cfg.Database.Port)
	if port == "" {
		port = "5432"
	}

	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func NewPool(ctx context.Context, dbOpts string, tracer pgx.QueryTracer) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		return nil, err
	}
	if tracer != nil {
		config.ConnConfig.Tracer = tracer
	}
	config.MaxConns = 8
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 30 * time.Second

	return pgxpool.NewWithConfig(ctx, config)
}

// sanitizeDBName lowercases name, folds anything outside [a-z0-9_] into "_"
// and keeps the result within the Postgres identifier limit.
func sanitizeDBName(name string) string {
	sanitized := unsafeDBNameChars.ReplaceAllString(strings.ToLower(name), "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%s_%x", sanitized[:maxDBNameLength-hashSuffixLength], sum[:4])
}

func adminOpts() string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, sanitizeDBName(name), c.Database.Password,
	)
}

// CreateDB drops and recreates the database for name.
func CreateDB(ctx context.Context, name string) error {
	conn, err := pgx.Connect(ctx, adminOpts())
	if err != nil {
		return err
	}
	defer func() {
		if cErr := conn.Close(ctx); cErr != nil {
			logrus.WithError(cErr).Warn("itf: close admin connection")
		}
	}()

	ident := pgx.Identifier{sanitizeDBName(name)}.Sanitize()
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident+" WITH (FORCE)"); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, "CREATE DATABASE "+ident)
	return err
}

func DropDB(ctx context.Context, name string) error {
	conn, err := pgx.Connect(ctx, adminOpts())
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()
	_, err = conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{sanitizeDBName(name)}.Sanitize()+" WITH (FORCE)")
	return err
}

// createDBMu serializes CREATE DATABASE, which contends on template1.
var createDBMu sync.Mutex

type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	tracer pgx.QueryTracer
}

func WithQueryTracer(tracer pgx.QueryTracer) DatabaseOption {
	return func(o *databaseOptions) { o.tracer = tracer }
}

// NewDatabase creates a migrated database named after tb and returns a pool
// for it. It skips when Postgres is unreachable outside CI.
func NewDatabase(tb testing.TB, opts ...DatabaseOption) *pgxpool.Pool {
	tb.Helper()

	var o databaseOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !CanDialPostgres() {
		if OnCI() {
			tb.Fatalf("postgres is not reachable at %s:%s", configuration.Use().Database.Host, configuration.Use().Database.Port)
		}
		tb.Skip("postgres is not reachable; skipping integration test")
	}

	ctx := context.Background()
	name := tb.Name()

	createDBMu.Lock()
	err := CreateDB(ctx, name)
	createDBMu.Unlock()
	if err != nil {
		tb.Fatalf("create database %s: %v", sanitizeDBName(name), err)
	}

	pool, err := NewPool(ctx, DbOpts(name), o.tracer)
	if err != nil {
		tb.Fatalf("connect %s: %v", sanitizeDBName(name), err)
	}
	tb.Cleanup(func() {
		pool.Close()
		if err := DropDB(context.Background(), name); err != nil {
			tb.Logf("drop database %s: %v", sanitizeDBName(name), err)
		}
	})

	runner, err := migrations.NewRunner(pool)
	if err != nil {
		tb.Fatalf("migrations: %v", err)
	}
	defer func() { _ = runner.Close() }()
	if _, err := runner.Up(ctx); err != nil {
		tb.Fatalf("migrate %s: %v", sanitizeDBName(name), err)
	}
	return pool
}

// Context returns a background context carrying pool and a test logger.
func Context(tb testing.TB, pool *pgxpool.Pool) context.Context {
	tb.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	ctx := composables.WithPool(context.Background(), pool)
	return composables.WithLogger(ctx, logrus.NewEntry(logger).WithField("test", tb.Name()))
}
