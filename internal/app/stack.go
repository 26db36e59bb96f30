// internal/app/stack.go
package app

import (
	"context"
	"fmt"
	"sync"

	"backoffice-console/internal/config"
	"backoffice-console/internal/db"
	wstypes "backoffice-console/internal/domain/websocket"
	"backoffice-console/internal/httpclient"
	sessionstore "backoffice-console/internal/pkg/session"
	"backoffice-console/internal/pkg/storage"
	"backoffice-console/internal/repository/postgres"
	authsvc "backoffice-console/internal/service/auth"
	"backoffice-console/internal/service/permissiongroup"
	sessionsvc "backoffice-console/internal/service/session"
	"backoffice-console/internal/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stack is the wired session core shared by the server and the CLI commands.
type Stack struct {
	Config  config.AppConfig
	Logger  *zap.Logger
	Storage storage.Storage
	Tokens  *sessionstore.TokenStore
	Public  *httpclient.Client
	Private *httpclient.Client
	Auth    *authsvc.API
	Groups  *permissiongroup.API
	Session *sessionsvc.Coordinator
	Hub     *websocket.Hub

	redis   redis.UniversalClient
	closers []func()
	once    sync.Once
}

// Build wires storage, clients, and the session coordinator. Nothing talks to
// the user service until the caller bootstraps the session.
func Build(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Stack, error) {
	s := &Stack{Config: cfg, Logger: logger}

	store, err := s.openStorage(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Storage = store
	s.Tokens = sessionstore.NewTokenStore(store, cfg.Storage.RefreshTTL, logger.Named("tokens"))

	s.Public = httpclient.New("public", cfg.UserServiceURL,
		httpclient.WithTimeout(cfg.RequestTimeout), httpclient.WithLogger(logger))
	s.Private = httpclient.New("private", cfg.UserServiceURL,
		httpclient.WithTimeout(cfg.RequestTimeout), httpclient.WithLogger(logger))
	for _, c := range []*httpclient.Client{s.Public, s.Private} {
		c.UseRequest(httpclient.RequestID())
		c.UseResponse(httpclient.LogResponses(logger.Named(c.Name())))
	}

	s.Auth = authsvc.NewAPI(s.Public, s.Private, logger.Named("auth"))
	s.Groups = permissiongroup.NewAPI(s.Private, logger.Named("permission_groups"))

	s.Session = sessionsvc.NewCoordinator(s.Tokens, s.Auth, logger.Named("session"),
		sessionsvc.WithRefreshTimeout(cfg.RefreshTimeout))
	s.Session.Attach(s.Public, s.Private)
	s.closers = append(s.closers, s.Session.Close)

	s.Hub = websocket.NewHub(logger.Named("hub"))
	return s, nil
}

func (s *Stack) openStorage(ctx context.Context) (storage.Storage, error) {
	cfg := s.Config.Storage

	switch s.Config.Storage.Backend {
	case config.StorageMemory:
		return storage.NewMemoryStorage(), nil

	case config.StorageFile:
		if cfg.Secret == "" {
			s.Logger.Warn("cookie file is not sealed; set CONSOLE_STORAGE_SECRET", zap.String("path", cfg.Path))
		}
		return storage.NewFileStorage(cfg.Path, cfg.Secret)

	case config.StorageRedis:
		client, err := s.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStorage(client, cfg.KeyPrefix), nil

	case config.StoragePostgres:
		pool, err := db.ConnectPostgres(ctx, db.PostgresConfig{
			URL:      s.Config.Postgres.URL,
			MaxConns: s.Config.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		repo := postgres.NewStorageRepository(pool, cfg.Table)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// redisClient connects once and shares the client between storage and realtime.
func (s *Stack) redisClient(ctx context.Context) (redis.UniversalClient, error) {
	if s.redis != nil {
		return s.redis, nil
	}
	client, err := db.NewRedisClient(ctx, db.RedisConfig{
		ClusterMode: s.Config.Redis.Cluster,
		Addresses:   s.Config.Redis.Addrs,
		Password:    s.Config.Redis.Password,
		DB:          s.Config.Redis.DB,
		PoolSize:    s.Config.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	s.redis = client
	s.closers = append(s.closers, func() { _ = client.Close() })
	return client, nil
}

// StartRealtime runs the hub and the configured event source until ctx ends,
// and routes account events to the session coordinator.
func (s *Stack) StartRealtime(ctx context.Context) error {
	cfg := s.Config.Realtime
	if cfg.Backend == config.RealtimeNone {
		s.Logger.Info("realtime disabled")
		return nil
	}

	// stopped by Session.Close
	s.Session.Listen(s.Hub)
	go s.Hub.Run(ctx)

	switch cfg.Backend {
	case config.RealtimeWebsocket:
		client := websocket.NewClient(websocket.ClientConfig{
			URL:        cfg.URL,
			Token:      s.Tokens.AccessToken,
			Channels:   []wstypes.ChannelType{wstypes.ChannelPermissions, wstypes.ChannelSystem},
			MinBackoff: cfg.MinBackoff,
			MaxBackoff: cfg.MaxBackoff,
		}, s.Hub, s.Logger.Named("realtime"))
		go func() { _ = client.Run(ctx) }()

	case config.RealtimeRedis:
		rc, err := s.redisClient(ctx)
		if err != nil {
			return err
		}
		channel := websocket.NewRedisChannel(rc, cfg.Channel, s.Hub, s.Logger.Named("realtime"))
		go func() {
			if err := channel.Run(ctx, nil); err != nil && ctx.Err() == nil {
				s.Logger.Error("realtime channel stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

// Close releases connections in reverse order of acquisition. Idempotent.
func (s *Stack) Close() {
	s.once.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
		_ = s.Logger.Sync()
	})
}
