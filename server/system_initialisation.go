package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jrsteele09/go-oidc-relay/internal/config"
	"github.com/jrsteele09/go-oidc-relay/server/authflowrepo"
	"github.com/jrsteele09/go-oidc-relay/server/loginsession"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// janitorInterval is how often in-memory stores drop expired records
const janitorInterval = time.Minute

// Stores are the flow state and session stores selected by configuration.
type Stores struct {
	Flows    authflowrepo.Repo
	Sessions *loginsession.Store

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// InitialiseStores creates the configured stores. Each redis client is pinged
// before use so that a bad address fails at startup rather than on the first login.
func InitialiseStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreBackendMemory:
		flows := authflowrepo.NewInMemoryRepo()
		sessions := loginsession.NewInMemoryLoginSessionRepo()
		s := &Stores{
			Flows:    flows,
			Sessions: loginsession.NewStore(sessions, cfg.GetMaxSessionAge()),
			stop:     make(chan struct{}),
		}
		s.startJanitor(flows, sessions)
		log.Info().Msg("using in-memory session store")
		return s, nil

	case config.StoreBackendRedis:
		sealer, err := loginsession.NewSealer(cfg.GetSessionSealKey())
		if err != nil {
			return nil, fmt.Errorf("[server InitialiseStores] %w", err)
		}

		flowClient, sessionClient := newRedisClient(cfg), newRedisClient(cfg)
		closeClients := func() {
			_ = flowClient.Close()
			_ = sessionClient.Close()
		}
		for name, client := range map[string]*redis.Client{"flow": flowClient, "session": sessionClient} {
			if err := client.Ping(ctx).Err(); err != nil {
				closeClients()
				return nil, fmt.Errorf("[server InitialiseStores] %s store redis at %s unreachable: %w", name, cfg.GetRedisAddr(), err)
			}
		}
		sessionRepo, err := loginsession.NewRedisLoginSessionRepo(sessionClient, cfg.GetRedisKeyPrefix(), sealer)
		if err != nil {
			closeClients()
			return nil, fmt.Errorf("[server InitialiseStores] %w", err)
		}

		log.Info().Str("addr", cfg.GetRedisAddr()).Msg("using redis session store")
		return &Stores{
			Flows:    authflowrepo.NewRedisRepo(flowClient, cfg.GetRedisKeyPrefix()),
			Sessions: loginsession.NewStore(sessionRepo, cfg.GetMaxSessionAge()),
			stop:     make(chan struct{}),
		}, nil

	default:
		return nil, fmt.Errorf("[server InitialiseStores] unknown store backend %q", cfg.GetStoreBackend())
	}
}

func newRedisClient(cfg config.StoreConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
}

// startJanitor periodically removes expired records from the in-memory repos.
// Redis expires keys itself.
func (s *Stores) startJanitor(flows *authflowrepo.InMemoryRepo, sessions *loginsession.InMemoryLoginSessionRepo) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				purgedFlows := flows.PurgeExpired(now.Add(-authflowrepo.ExpiredRetention))
				purgedSessions := sessions.PurgeExpired(now)
				if purgedFlows > 0 || purgedSessions > 0 {
					log.Debug().Int("flows", purgedFlows).Int("sessions", purgedSessions).Msg("purged expired records")
				}
			}
		}
	}()
}

// Close stops background work and releases both stores.
func (s *Stores) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	var result *multierror.Error
	if err := s.Flows.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.Sessions.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
