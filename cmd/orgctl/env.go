package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Dr1DeX/orgtree/modules/org"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
)

type cliEnv struct {
	ctx  context.Context
	pool *pgxpool.Pool
	rdb  *redis.Client
	svc  *org.Services
}

func (e *cliEnv) Close() {
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("db connect failed: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, fmt.Errorf("db connect failed: %w", err))
	}
	return pool, nil
}

func connectRedis(ctx context.Context, conf *configuration.Configuration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: conf.RedisURL})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, withCode(exitDB, fmt.Errorf("redis connect failed: %w", err))
	}
	return rdb, nil
}

func openEnv(cmd *cobra.Command, opts *rootOptions) (*cliEnv, error) {
	conf := configuration.Use()
	logger := conf.Logger()

	pool, err := connectDB(cmd.Context(), conf)
	if err != nil {
		return nil, err
	}
	e := &cliEnv{pool: pool}

	moduleOpts := &org.ModuleOptions{Config: conf, Logger: logger}
	if conf.Org.UsesRedis() {
		rdb, err := connectRedis(cmd.Context(), conf)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.rdb = rdb
		moduleOpts.Redis = rdb
	}
	e.svc = org.BuildServices(moduleOpts)

	requestID := opts.requestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := composables.WithPool(cmd.Context(), pool)
	ctx = composables.WithRequestID(ctx, requestID)
	ctx = composables.WithLogger(ctx, logger.WithFields(logrus.Fields{
		"component":  "orgctl",
		"request_id": requestID,
		"command":    cmd.CommandPath(),
	}))
	e.ctx = ctx
	return e, nil
}

// run opens the environment, times fn and prints its result as one JSON line.
func run(cmd *cobra.Command, opts *rootOptions, name string, fn func(e *cliEnv) (any, error)) error {
	e, err := openEnv(cmd, opts)
	if err != nil {
		return err
	}
	defer e.Close()

	start := time.Now()
	res, err := fn(e)
	if err != nil {
		return classify(err)
	}
	return writeResult(cmd, commandOutput{
		Command:    name,
		DurationMS: time.Since(start).Milliseconds(),
		Result:     res,
	})
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
