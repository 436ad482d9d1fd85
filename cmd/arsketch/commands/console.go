package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dyluth/arsketch/internal/perception"
	"github.com/dyluth/arsketch/internal/printer"
	"github.com/dyluth/arsketch/internal/syncengine"
	"github.com/dyluth/arsketch/pkg/sketch"
)

const consoleHelp = `Commands:
  draw X Y Z [X2 Y2 Z2]  Place a stroke at X Y Z (optionally a segment to X2 Y2 Z2)
  track STATE            Set tracking: normal, not_available or limited(REASON)
  map STATUS             Set mapping: not_available, limited, extending or mapped
  share                  Send the current map to all peers
  save                   Save the current map locally
  load                   Load the locally saved map
  reset                  Discard the session and start over
  status                 Show the status message
  state                  Show the session state
  help                   Show this help
  quit                   Leave the session
`

// console drives an engine from text commands. The simulator stands in for the
// device's perception subsystem.
type console struct {
	engine *syncengine.Engine
	sim    *perception.Simulator
}

var errQuit = errors.New("quit")

// run reads commands until EOF, quit or context cancellation.
func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		err := c.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if errors.Is(err, syncengine.ErrEngineStopped) {
			return err
		}
		if err != nil {
			printer.Warning("%v\n", err)
		}
	}
	return scanner.Err()
}

// exec runs a single command line and prints the resulting status.
func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "draw":
		return c.draw(ctx, args)

	case "track":
		if len(args) != 1 {
			return fmt.Errorf("usage: track STATE")
		}
		t, err := sketch.ParseTrackingState(args[0])
		if err != nil {
			return err
		}
		c.sim.SetTracking(t)
		if err := c.engine.TrackingChanged(ctx, t); err != nil {
			return err
		}

	case "map":
		if len(args) != 1 {
			return fmt.Errorf("usage: map STATUS")
		}
		m := sketch.MappingStatus(args[0])
		if err := m.Validate(); err != nil {
			return err
		}
		c.sim.SetMapping(m)

	case "share":
		if err := c.engine.Share(ctx); err != nil {
			return err
		}
		printer.Success("Map shared\n")

	case "save":
		if err := c.engine.Save(ctx); err != nil {
			return err
		}
		printer.Success("Map saved\n")

	case "load":
		if err := c.engine.Load(ctx); err != nil {
			return err
		}
		printer.Success("Map loaded\n")

	case "reset":
		if err := c.engine.Reset(ctx); err != nil {
			return err
		}

	case "status":
		// Printed below

	case "state":
		return c.printState(ctx)

	case "help":
		printer.Info("%s", consoleHelp)
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}

	return c.printStatus(ctx)
}

func (c *console) draw(ctx context.Context, args []string) error {
	if len(args) != 3 && len(args) != 6 {
		return fmt.Errorf("usage: draw X Y Z [X2 Y2 Z2]")
	}

	coords, err := parseFloats(args)
	if err != nil {
		return err
	}

	hit := sketch.Translation(coords[0], coords[1], coords[2])
	c.sim.SetHit(&hit)

	var src, dst *sketch.Point3
	if len(coords) == 6 {
		src = &sketch.Point3{X: coords[0], Y: coords[1], Z: coords[2]}
		dst = &sketch.Point3{X: coords[3], Y: coords[4], Z: coords[5]}
	}

	a, err := c.engine.Draw(ctx, src, dst)
	if err != nil {
		return err
	}
	printer.Success("Drew %s\n", a.ID)
	return c.printStatus(ctx)
}

func (c *console) printStatus(ctx context.Context) error {
	r, err := c.engine.Status(ctx)
	if err != nil {
		return err
	}
	printer.Status(r.Message, r.ShowThumbnail)
	return nil
}

func (c *console) printState(ctx context.Context) error {
	st, err := c.engine.State(ctx)
	if err != nil {
		return err
	}

	authority := string(st.MapAuthority)
	if authority == "" {
		authority = "(none)"
	}

	printer.Info("Phase:          %s\n", st.Phase)
	printer.Info("Map authority:  %s\n", authority)
	printer.Info("Peers:          %d\n", len(st.Peers))
	printer.Info("Anchors:        %d\n", len(st.Anchors))
	printer.Info("Sent/failed:    %d/%d\n", st.Stats.PayloadsSent, st.Stats.SendFailures)
	printer.Info("Dropped:        %d while relocalizing, %d duplicates\n", st.Stats.AnchorsDropped, st.Stats.DuplicatesIgnored)
	return nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", a)
		}
		out[i] = v
	}
	return out, nil
}
