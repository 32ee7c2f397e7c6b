// Package app wires configuration into a running store: storage backend,
// signal bus and the live game.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/scorecard/internal/config"
	"github.com/jason-s-yu/scorecard/internal/game"
	"github.com/jason-s-yu/scorecard/internal/signal"
	"github.com/jason-s-yu/scorecard/internal/storage"
)

// App is one running instance.
type App struct {
	Config     config.Config
	Log        *logrus.Logger
	InstanceID string
	Backend    storage.Backend
	Bus        signal.Bus
	Store      *game.Store

	redis   *redis.Client
	closers []func() error
}

// Open connects the configured backend and bus and opens the store. On error
// everything opened so far is closed again.
func Open(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, InstanceID: uuid.NewString()}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	entry := a.Log.WithFields(logrus.Fields{"instance": a.InstanceID, "backend": a.Config.Backend, "bus": a.Config.Bus})

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	a.Backend = backend
	a.closers = append(a.closers, backend.Close)

	bus, err := a.openBus(ctx)
	if err != nil {
		return err
	}
	a.Bus = bus
	a.closers = append(a.closers, bus.Close)

	store, err := game.New(game.Options{
		Snapshots:  backend,
		Records:    backend,
		Bus:        bus,
		Logger:     a.Log,
		InstanceID: a.InstanceID,
	})
	if err != nil {
		return err
	}
	if err := store.Open(ctx); err != nil {
		return err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)
	entry.Debug("instance ready")
	return nil
}

func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("app: redis %s: %w", a.Config.RedisAddr, err)
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *App) openBackend(ctx context.Context) (storage.Backend, error) {
	switch a.Config.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendSQLite:
		return storage.OpenSQLite(ctx, a.Config.SQLitePath)
	case config.BackendPostgres:
		return storage.ConnectPostgres(ctx, a.Config.DatabaseURL)
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewRedis(client, a.Config.RedisPrefix), nil
	}
	return nil, fmt.Errorf("app: unknown backend %q", a.Config.Backend)
}

func (a *App) openBus(ctx context.Context) (signal.Bus, error) {
	switch a.Config.Bus {
	case config.BusLocal:
		return signal.NewHub(a.Log).Connect(a.InstanceID), nil
	case config.BusRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return signal.NewRedisBus(ctx, client, a.Config.RedisPrefix+":signals", a.InstanceID, a.Log)
	case config.BusWS:
		return signal.DialWS(ctx, a.Config.RelayURL, a.InstanceID, a.Log)
	}
	return nil, fmt.Errorf("app: unknown bus %q", a.Config.Bus)
}

// Close shuts everything down in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
