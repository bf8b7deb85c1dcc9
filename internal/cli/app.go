package cli

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/auth"
	"github.com/and161185/passby/internal/config"
	"github.com/and161185/passby/internal/crypto"
	"github.com/and161185/passby/internal/events"
	"github.com/and161185/passby/internal/limiter"
	"github.com/and161185/passby/internal/repository/postgres"
	"github.com/and161185/passby/internal/service"
	"github.com/and161185/passby/internal/sweeper"
	"github.com/and161185/passby/internal/tokencache"
)

// app holds the wired services of one process.
type app struct {
	registry   *service.RegistryServiceImpl
	correlator *service.Correlator
	ledger     *service.LedgerServiceImpl
	graph      *service.GraphServiceImpl
	devices    *service.DeviceServiceImpl
	news       *service.AnnouncementServiceImpl
	verifier   *auth.Verifier
	sweepers   []sweeper.Job
	schedules  []sweeper.Schedule

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires repositories, optional Redis and NATS, and services.
func buildApp(ctx context.Context, cfg config.Config, db *postgres.DB, clock clockwork.Clock, log *zap.Logger) (*app, error) {
	a := &app{}

	var cache service.TokenCache
	if cfg.Redis.Addr != "" {
		rdb, err := tokencache.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		cache = tokencache.New(rdb)
		log.Info("token cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	a.devices = service.NewDeviceService(postgres.NewDeviceRepo(db), clock, log)
	a.news = service.NewAnnouncementService(postgres.NewAnnouncementRepo(db), 0)

	var pub events.Publisher = events.Nop{}
	if len(cfg.NATS.Servers) > 0 {
		nc, err := events.Connect(cfg.NATS)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		a.closers = append(a.closers, func() { _ = nc.Drain() })
		pub = events.NewNATS(nc,
			events.WithLogger(log),
			events.WithTimeout(cfg.NATS.Timeout),
			events.WithTokenSource(a.devices),
		)
		sub, err := events.SubscribeInvalidTokens(nc, cfg.NATS.Queue, a.devices, cfg.NATS.Timeout, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("subscribe %s: %w", events.SubjectDeviceInvalid, err)
		}
		a.closers = append(a.closers, func() { _ = sub.Unsubscribe() })
		log.Info("event publishing enabled", zap.Strings("servers", cfg.NATS.Servers))
	}

	digest, err := crypto.NewDigester(cfg.DigestKey())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.verifier, err = auth.NewVerifier([]byte(cfg.JWTKey), clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	lim, err := limiter.New(cfg.Limiter, clock)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens := postgres.NewTokenRepo(db)
	encounters := postgres.NewEncounterRepo(db)
	relations := postgres.NewRelationRepo(db)

	a.registry = service.NewRegistryService(tokens, digest, cache, clock, cfg.TokenTTL, log)
	a.graph = service.NewGraphService(relations, encounters, pub, clock, log)
	a.ledger = service.NewLedgerService(encounters, relations, a.graph, pub, clock, cfg.Ledger, log)
	a.correlator = service.NewCorrelator(a.registry, postgres.NewObservationRepo(db), a.ledger, lim, clock, cfg.Correlator, log)

	a.sweepers = []sweeper.Job{
		sweeper.NewEncounters(encounters, postgres.NewBookmarkRepo(db), clock, cfg.EncounterSweep(), log),
		sweeper.NewTokens(tokens, clock, cfg.Sweepers.Tokens),
	}
	a.schedules = []sweeper.Schedule{cfg.Sweepers.EncounterSchedule, cfg.Sweepers.TokenSchedule}
	return a, nil
}
