package commands

import (
	"context"
	"time"

	"github.com/dyluth/arsketch/internal/peer"
	"github.com/dyluth/arsketch/internal/printer"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the devices in the session roster",
	Long: `List the devices currently registered in the configured session.

This reads the roster directly from Redis without joining the session.`,
	RunE: runPeers,
}

func init() {
	rootCmd.AddCommand(peersCmd)
}

func runPeers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return printer.Error("invalid redis url", err.Error(), nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return listPeers(ctx, redis.NewClient(redisOpts), cfg.Session)
}

// listPeers prints the roster of session. It closes rdb.
func listPeers(ctx context.Context, rdb *redis.Client, session string) error {
	defer rdb.Close()

	peers, err := peer.ListPeers(ctx, rdb, session)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to read roster",
			err.Error(),
			map[string]string{"Session": session},
			[]string{"Check that Redis is running and redis.url is correct"},
		)
	}

	if len(peers) == 0 {
		printer.Info("No peers in session '%s'\n", session)
		return nil
	}

	printer.Info("Peers in session '%s':\n", session)
	for _, p := range peers {
		printer.Info("  %s\n", p)
	}
	return nil
}
