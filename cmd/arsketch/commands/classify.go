package commands

import (
	"encoding/json"
	"fmt"

	"github.com/dyluth/arsketch/internal/printer"
	"github.com/dyluth/arsketch/internal/status"
	"github.com/dyluth/arsketch/pkg/sketch"
	"github.com/spf13/cobra"
)

var (
	classifyTracking     string
	classifyMapping      string
	classifySaved        bool
	classifyRelocalizing bool
	classifyPeers        []string
	classifyAuthority    string
	classifyAnchor       bool
	classifyFrameAnchors int
	classifyJSON         bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Evaluate the status message for a set of signals",
	Long: `Run the status classifier on the given signals and print the message it
would show. Useful for checking what a device displays in a given situation.

Examples:
  arsketch classify --tracking normal --mapping mapped --anchor
  arsketch classify --tracking "limited(relocalizing)" --relocalizing --authority ipad-1
  arsketch classify --tracking normal --peers ipad-1,phone-2 --saved --relocalizing`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyTracking, "tracking", "normal", "Tracking state: normal, not_available or limited(REASON)")
	classifyCmd.Flags().StringVar(&classifyMapping, "mapping", string(sketch.MappingNotAvailable), "Mapping status: not_available, limited, extending or mapped")
	classifyCmd.Flags().BoolVar(&classifySaved, "saved", false, "A map is saved locally")
	classifyCmd.Flags().BoolVar(&classifyRelocalizing, "relocalizing", false, "A snapshot is being applied")
	classifyCmd.Flags().StringSliceVar(&classifyPeers, "peers", nil, "Connected peers (comma separated)")
	classifyCmd.Flags().StringVar(&classifyAuthority, "authority", "", "Peer whose map was received")
	classifyCmd.Flags().BoolVar(&classifyAnchor, "anchor", false, "A user stroke exists")
	classifyCmd.Flags().IntVar(&classifyFrameAnchors, "frame-anchors", 0, "Anchors in the current frame")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	signals, err := buildSignals()
	if err != nil {
		return err
	}
	return printClassification(status.Classify(signals), classifyJSON)
}

func buildSignals() (status.Signals, error) {
	tracking, err := sketch.ParseTrackingState(classifyTracking)
	if err != nil {
		return status.Signals{}, printer.Error(
			"invalid tracking state",
			err.Error(),
			[]string{"Use normal, not_available or limited(initializing|relocalizing|excessive_motion|insufficient_features)"},
		)
	}

	mapping := sketch.MappingStatus(classifyMapping)
	if err := mapping.Validate(); err != nil {
		return status.Signals{}, printer.Error(
			"invalid mapping status",
			err.Error(),
			[]string{"Use not_available, limited, extending or mapped"},
		)
	}

	if classifyFrameAnchors < 0 {
		return status.Signals{}, printer.Error("invalid frame anchor count", "--frame-anchors must be >= 0", nil)
	}

	peers := make([]sketch.PeerID, len(classifyPeers))
	for i, p := range classifyPeers {
		peers[i] = sketch.PeerID(p)
	}

	return status.Signals{
		Tracking:      tracking,
		Mapping:       mapping,
		HasSavedMap:   classifySaved,
		Relocalizing:  classifyRelocalizing,
		Peers:         peers,
		MapAuthority:  sketch.PeerID(classifyAuthority),
		HasUserAnchor: classifyAnchor,
		FrameAnchors:  classifyFrameAnchors,
	}, nil
}

func printClassification(r status.Result, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(map[string]interface{}{
			"rule":           int(r.Rule),
			"message":        r.Message,
			"show_thumbnail": r.ShowThumbnail,
			"hidden":         r.Hidden(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	printer.Info("Rule %d\n", r.Rule)
	if r.Hidden() {
		printer.Info("(status hidden)\n")
		return nil
	}
	printer.Status(r.Message, r.ShowThumbnail)
	return nil
}
