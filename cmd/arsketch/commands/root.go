package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dyluth/arsketch/internal/config"
	"github.com/dyluth/arsketch/internal/printer"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arsketch",
	Short: "ARSketch - Collaborative sketching in a shared spatial map",
	Long: `ARSketch keeps a sketch consistent across devices that share one spatial map.

One device shares its map snapshot, the others relocalize against it, and every
stroke drawn afterwards is broadcast to all peers in the session. Peers find each
other through Redis; the last saved map is kept in a local BoltDB file.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "arsketch.yml", "Path to arsketch.yml")
}

// loadConfig reads the configuration file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, printer.Error(
				"arsketch.yml not found",
				fmt.Sprintf("No configuration file at %s.", configPath),
				[]string{
					"Create one with: arsketch init --session <name>",
					"Point at an existing file with: --config <path>",
				},
			)
		}
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			nil,
		)
	}
	return cfg, nil
}
