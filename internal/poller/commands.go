package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownCommand = errors.New("unknown command")

// Exec runs one interactive command line against the controller:
//
//	follow <device>   toggle full-path display for a device
//	interval <dur>    change the refresh period, e.g. 30s
//	toggle            switch between idle and auto-updating
//	refresh           refresh the map now
//	devices           reload the device list now
//
// It returns a short description of the outcome.
func (c *Controller) Exec(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "follow":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: follow <device>")
		}
		if c.ToggleFollow(args[0]) {
			return "following " + args[0], nil
		}
		return "stopped following " + args[0], nil
	case "interval":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: interval <duration>")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return "", fmt.Errorf("bad duration %q: %w", args[0], err)
		}
		if err := c.SetInterval(d); err != nil {
			return "", err
		}
		return "interval set to " + d.String(), nil
	case "toggle":
		return "now " + c.Toggle().String(), nil
	case "refresh":
		if err := c.Refresh(ctx); err != nil {
			return "", err
		}
		return "refreshed", nil
	case "devices":
		devices, err := c.RefreshDevices(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d devices", len(devices)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}
