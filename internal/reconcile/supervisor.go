package reconcile

import (
	"context"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/autotrader-api/internal/types"
)

// Config controls watch cadence and lifetime. Tests compress these to keep
// runs fast.
type Config struct {
	// PollInterval is the delay between successful check cycles.
	PollInterval time.Duration
	// ErrorInterval is the longer delay applied after a transient failure,
	// so a broker outage is not hammered.
	ErrorInterval time.Duration
	// WatchTimeout force-stops a watch that never reaches a terminal status.
	WatchTimeout time.Duration
	// MaxRecoveryJitter bounds the per-order stagger applied during the
	// startup recovery sweep.
	MaxRecoveryJitter time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		ErrorInterval:     10 * time.Second,
		WatchTimeout:      30 * time.Minute,
		MaxRecoveryJitter: 5 * time.Second,
	}
}

// Supervisor owns the lifecycle of all order watches: it starts them,
// re-arms them after a restart, and tears every one of them down on
// shutdown. Each watch is a background loop that runs the Checker until the
// order is terminal, the watch is cancelled, or the watch times out.
type Supervisor struct {
	checker  *Checker
	store    OrderStore
	registry *Registry
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(checker *Checker, store OrderStore, cfg Config) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		checker:  checker,
		store:    store,
		registry: NewRegistry(),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// StartWatch begins watching an order. No-op if a watch for the same polling
// key is already active or the supervisor has been shut down. The watch
// expires on its own after the configured timeout even if the broker never
// reports a terminal status.
func (s *Supervisor) StartWatch(orderID, connectionID uint, brokerOrderID string) {
	if s.ctx.Err() != nil {
		return
	}

	key := PollKey{OrderID: orderID, BrokerOrderID: brokerOrderID}
	watchCtx, cancel := context.WithTimeout(s.ctx, s.cfg.WatchTimeout)

	if !s.registry.TryStart(key, cancel) {
		cancel()
		log.Debug().Str("polling_key", key.String()).Msg("order already being watched")
		return
	}

	log.Info().
		Str("component", "watch_supervisor").
		Str("polling_key", key.String()).
		Uint("connection_id", connectionID).
		Msg("starting order watch")

	s.wg.Add(1)
	go s.watch(watchCtx, key, connectionID)
}

func (s *Supervisor) watch(ctx context.Context, key PollKey, connectionID uint) {
	defer s.wg.Done()
	defer s.registry.Stop(key)

	logger := log.With().
		Str("component", "watch_supervisor").
		Str("polling_key", key.String()).
		Logger()

	for {
		keep, err := s.checker.Check(ctx, key.OrderID, connectionID, key.BrokerOrderID)

		delay := s.cfg.PollInterval
		if err != nil {
			logger.Error().Err(err).Msg("check cycle failed, backing off")
			delay = s.cfg.ErrorInterval
		} else if !keep {
			logger.Info().Msg("watch finished")
			return
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("watch stopped")
			return
		case <-time.After(delay):
		}
	}
}

// RecoverOpenWatches re-arms watches for every order left non-terminal by a
// prior run. Called once at startup. Each start is staggered by a small,
// deterministic per-order delay so a restart does not produce a thundering
// herd against the broker API. Safe to call again: duplicate starts are
// rejected by the registry.
func (s *Supervisor) RecoverOpenWatches(ctx context.Context) error {
	open, err := s.store.ListOpenOrdersWithConnections(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("component", "watch_supervisor").
		Int("open_orders", len(open)).
		Msg("recovering watches for open orders")

	for _, row := range open {
		delay := s.recoveryDelay(row.Order.ID)

		s.wg.Add(1)
		go func(orderID, connectionID uint, brokerOrderID string) {
			defer s.wg.Done()
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			s.StartWatch(orderID, connectionID, brokerOrderID)
		}(row.Order.ID, row.Connection.ID, row.Order.BrokerOrderID)
	}
	return nil
}

// recoveryDelay derives a stable jitter from the order id, bounded by
// MaxRecoveryJitter.
func (s *Supervisor) recoveryDelay(orderID uint) time.Duration {
	if s.cfg.MaxRecoveryJitter <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatUint(uint64(orderID), 10)))
	return time.Duration(h.Sum32()) % s.cfg.MaxRecoveryJitter
}

// GetStatus reports the currently active watches, for health endpoints.
func (s *Supervisor) GetStatus() types.ReconcilerStatus {
	keys := s.registry.ListActive()
	active := make([]string, 0, len(keys))
	for _, key := range keys {
		active = append(active, key.String())
	}
	sort.Strings(active)

	return types.ReconcilerStatus{
		ActiveCount: len(keys),
		ActiveKeys:  active,
	}
}

// ShutdownAll cancels every watch and pending recovery start, then blocks
// until all in-flight check cycles have finished. No store writes happen
// after it returns.
func (s *Supervisor) ShutdownAll() {
	log.Info().Str("component", "watch_supervisor").Msg("stopping all order watches")

	s.cancel()
	s.registry.StopAll()
	s.wg.Wait()

	log.Info().Str("component", "watch_supervisor").Msg("all order watches stopped")
}
