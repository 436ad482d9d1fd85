package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/arsketch/internal/config"
	"github.com/dyluth/arsketch/internal/printer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	forceInit   bool
	initSession string
	initDevice  string
	initRedis   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an arsketch.yml for a session",
	Long: `Create an arsketch.yml with default settings.

Devices that use the same session name and Redis server see each other as peers.
If --session is omitted a random session name is generated; share it with the
other devices.

Use --force to overwrite an existing configuration.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing configuration")
	initCmd.Flags().StringVar(&initSession, "session", "", "Session name (generated if omitted)")
	initCmd.Flags().StringVar(&initDevice, "device", "", "Device name (generated if omitted)")
	initCmd.Flags().StringVar(&initRedis, "redis-url", "", "Redis URL (default "+config.DefaultRedisURL+")")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if _, err := os.Stat(configPath); err == nil {
			return printer.Error(
				"configuration already exists",
				fmt.Sprintf("%s is already present.", configPath),
				[]string{"Use --force to overwrite it"},
			)
		}
	}

	session := initSession
	if session == "" {
		session = "sketch-" + uuid.New().String()[:8]
	}

	cfg := &config.Config{Version: "1.0", Session: session, Device: initDevice}
	if initRedis != "" {
		cfg.Redis = &config.RedisConfig{URL: initRedis}
	}
	if err := cfg.Validate(); err != nil {
		return printer.Error("invalid settings", err.Error(), nil)
	}

	if err := config.Write(configPath, cfg); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	printer.Success("Created %s\n", configPath)
	printer.Info("  Session: %s\n", cfg.Session)
	printer.Info("  Device:  %s\n", cfg.Device)
	printer.Info("  Redis:   %s\n", cfg.Redis.URL)
	printer.Println()
	printer.Step("Run 'arsketch join' on each device\n")
	return nil
}
