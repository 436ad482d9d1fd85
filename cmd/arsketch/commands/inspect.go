package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/arsketch/internal/printer"
	"github.com/dyluth/arsketch/internal/store"
	"github.com/dyluth/arsketch/pkg/sketch"
	"github.com/spf13/cobra"
)

var (
	inspectStorePath string
	inspectJSON      bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the locally saved map snapshot",
	Long: `Decode the saved map snapshot and list its anchors.

The store path defaults to store.path from arsketch.yml. When no configuration file
exists, pass --store explicitly.

Examples:
  arsketch inspect
  arsketch inspect --store /tmp/arsketch.db --json | jq '.anchors[].id'`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectStorePath, "store", "", "Path to the snapshot store (overrides store.path)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the snapshot as JSON without the thumbnail bytes")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := inspectStorePath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Store.Path
	}

	if _, err := os.Stat(path); err != nil {
		return printer.Error(
			"snapshot store not found",
			fmt.Sprintf("No store at %s.", path),
			[]string{"Save a map from 'arsketch join' first"},
		)
	}

	st, err := store.OpenBolt(path)
	if err != nil {
		return printer.ErrorWithContext("cannot open snapshot store", err.Error(), map[string]string{"Store": path}, nil)
	}
	defer st.Close()

	return inspectSnapshot(context.Background(), st, inspectJSON)
}

func inspectSnapshot(ctx context.Context, st store.SnapshotStore, asJSON bool) error {
	payload, err := st.LoadSnapshot(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		printer.Info("No saved map\n")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	msg, err := sketch.Decode(payload)
	if err != nil {
		return printer.Error("saved map is corrupt", err.Error(), []string{"Save a new map from 'arsketch join'"})
	}
	if msg.Kind != sketch.KindSnapshot {
		return printer.Error("saved map is corrupt", fmt.Sprintf("Stored payload is an %s.", msg.Kind), nil)
	}
	snap := *msg.Snapshot

	if asJSON {
		data, err := json.MarshalIndent(snap.WithoutThumbnail(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	savedAt, err := st.SavedAt(ctx)
	if err != nil {
		return fmt.Errorf("failed to read save time: %w", err)
	}

	capturedBy := string(snap.CapturedBy)
	if capturedBy == "" {
		capturedBy = "(unknown)"
	}

	printer.Info("Saved:       %s\n", savedAt.Format("2006-01-02 15:04:05"))
	printer.Info("Captured by: %s\n", capturedBy)
	printer.Info("Payload:     %d bytes (thumbnail %d bytes)\n", len(payload), len(snap.Thumbnail))
	printer.Info("Anchors:     %d\n", len(snap.Anchors))
	for _, a := range snap.Anchors {
		p := a.Transform.Position()
		kind := "point"
		if a.IsSegment() {
			kind = "segment"
		}
		printer.Info("  %-28s %-8s (%.3f, %.3f, %.3f)\n", a.ID, kind, p.X, p.Y, p.Z)
	}
	return nil
}
