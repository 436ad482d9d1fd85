package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/arsketch/internal/config"
	"github.com/dyluth/arsketch/internal/peer"
	"github.com/dyluth/arsketch/internal/perception"
	"github.com/dyluth/arsketch/internal/printer"
	"github.com/dyluth/arsketch/internal/store"
	"github.com/dyluth/arsketch/internal/syncengine"
	"github.com/dyluth/arsketch/pkg/sketch"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var joinHealthAddr string

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join the session and sketch interactively",
	Long: `Join the configured session and read sketch commands from standard input.

The device registers in the session roster, receives map snapshots and strokes
from other peers and broadcasts its own. A simulated perception subsystem stands
in for the device camera; use 'track' and 'map' to drive it.

Type 'help' after joining for the list of commands.`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinHealthAddr, "health-addr", "", "Serve /healthz on this address (overrides health.addr)")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if joinHealthAddr != "" {
		cfg.Health.Addr = joinHealthAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	printer.Success("Joined session '%s' as %s\n", cfg.Session, cfg.Device)
	printer.Info("Type 'help' for commands.\n")

	c := &console{engine: s.engine, sim: s.sim}
	if err := c.printStatus(ctx); err != nil {
		return err
	}
	return c.run(ctx, os.Stdin)
}

// session is a joined device: transport, store, engine and optional health server.
type session struct {
	channel *peer.RedisChannel
	store   *store.BoltStore
	sim     *perception.Simulator
	engine  *syncengine.Engine
	health  *syncengine.HealthServer

	cancel context.CancelFunc
	done   chan struct{}
}

// openSession connects to Redis, joins the roster and starts the engine.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, printer.Error(
			"invalid redis url",
			err.Error(),
			[]string{"Check redis.url in arsketch.yml or ARSKETCH_REDIS_URL"},
		)
	}

	channel, err := peer.NewRedisChannel(redisOpts, cfg.Session, sketch.PeerID(cfg.Device))
	if err != nil {
		return nil, fmt.Errorf("failed to create peer channel: %w", err)
	}

	if err := channel.Ping(ctx); err != nil {
		channel.Close()
		return nil, printer.ErrorWithContext(
			"redis unavailable",
			fmt.Sprintf("Could not reach Redis: %v", err),
			map[string]string{"Redis": cfg.Redis.URL},
			[]string{"Start a Redis server, or point redis.url at a running one"},
		)
	}

	if err := channel.Join(ctx); err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	st, err := store.OpenBolt(cfg.Store.Path)
	if err != nil {
		channel.Close()
		return nil, printer.ErrorWithContext(
			"cannot open snapshot store",
			err.Error(),
			map[string]string{"Store": cfg.Store.Path},
			[]string{"Check that no other arsketch process is using the same store.path"},
		)
	}

	sim := perception.NewSimulator()
	engine := syncengine.New(cfg.Session, channel, sim, st, syncengine.Options{
		OutboxSize:            cfg.Sync.OutboxSize,
		RelocalizationTimeout: time.Duration(cfg.Sync.RelocalizationTimeout),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		channel: channel,
		store:   st,
		sim:     sim,
		engine:  engine,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		engine.Run(runCtx)
	}()

	if cfg.Health.Addr != "" {
		s.health = syncengine.NewHealthServer(cfg.Health.Addr, engine, channel)
		if err := s.health.Start(); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to start health server: %w", err)
		}
	}

	return s, nil
}

// close stops the engine and leaves the session.
func (s *session) close() {
	if s.health != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.health.Shutdown(shutdownCtx)
		cancel()
	}
	s.cancel()
	<-s.done
	s.channel.Close()
	s.store.Close()
}
