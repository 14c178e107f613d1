package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fleetwatch/internal/clients"
	"fleetwatch/internal/config"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
	"fleetwatch/internal/poller"
	"fleetwatch/internal/tracking"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// logSink prints each rendered scene as one summary line per device.
type logSink struct{}

func (logSink) ShowScene(seq uint64, scene tracking.Scene) {
	latest := 0
	for _, m := range scene.Markers {
		if !m.Latest {
			continue
		}
		latest++
		log.Info().
			Str("device_id", m.DeviceID).
			Float64("lat", m.Latitude).
			Float64("lng", m.Longitude).
			Str("color", m.Color.CSS()).
			Bool("active", m.Active).
			Bool("tracked", m.Tracked).
			Msg("position")
	}
	for _, p := range scene.Polylines {
		log.Info().Str("device_id", p.DeviceID).Int("points", len(p.Points)).Msg("path")
	}
	log.Info().
		Uint64("seq", seq).
		Int("markers", len(scene.Markers)).
		Int("devices", latest).
		Msg("scene rendered")
}

func (logSink) ShowDevices(devices []models.DeviceSummary) {
	for _, d := range devices {
		log.Info().
			Str("device_id", d.DeviceID).
			Int64("records", d.TotalRecords).
			Time("last_record", d.LastRecord).
			Bool("active", d.Active).
			Msg("device")
	}
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	follow := flag.String("follow", "", "comma separated device ids to show with full paths")
	device := flag.String("device", "", "only show this device in the overview")
	interval := flag.Duration("interval", cfg.Follow.Interval, "refresh interval")
	apiURL := flag.String("api", cfg.Follow.APIURL, "fleetwatch API base URL")
	flag.Parse()

	logging.Init(cfg.Log.Level, "console")

	if cfg.Follow.Email == "" || cfg.Follow.Password == "" {
		log.Fatal().Msg("FOLLOW_EMAIL and FOLLOW_PASSWORD are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := clients.NewFleetClient(*apiURL, nil)
	if err := client.Login(ctx, cfg.Follow.Email, cfg.Follow.Password); err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}

	status := poller.NewStatusBoard(func(s poller.Status) {
		if s.Kind == poller.StatusError {
			log.Warn().Str("status", string(s.Kind)).Msg(s.Message)
			return
		}
		log.Debug().Str("status", string(s.Kind)).Msg(s.Message)
	})

	controller := poller.NewController(client, logSink{}, poller.Options{
		Interval: *interval,
		Filter:   clients.FixQuery{DeviceID: *device},
		Follow:   splitIDs(*follow),
		Status:   status,
	})
	defer controller.Close()

	if _, err := controller.RefreshDevices(ctx); err != nil {
		log.Warn().Err(err).Msg("initial device list failed")
	}
	controller.Start()
	log.Info().
		Strs("following", controller.Following()).
		Dur("interval", controller.Interval()).
		Msg("following fleet, type follow/interval/toggle/refresh/devices, Ctrl+C to stop")

	go readCommands(ctx, controller)

	<-ctx.Done()
	log.Info().Msg("stopping")
}

// readCommands feeds stdin lines (follow, interval, toggle, refresh,
// devices) to the controller until stdin closes.
func readCommands(ctx context.Context, controller *poller.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		result, err := controller.Exec(ctx, scanner.Text())
		if err != nil {
			log.Warn().Err(err).Msg("command failed")
			continue
		}
		if result != "" {
			log.Info().Str("state", controller.State().String()).Msg(result)
		}
	}
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
