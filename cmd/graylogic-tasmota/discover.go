package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/discovery"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tasmota/internal/transport"
)

func newDiscoverCmd() *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the Tasmota devices answering on the broker",
		Long: `Publishes a status request to the group topic and lists every device
that answers or announces itself within the timeout.`,
		Example: `  graylogic-tasmota discover
  graylogic-tasmota discover --timeout 10s --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runDiscover(ctx, cmd.OutOrStdout(), timeout, asJSON)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "listening window (default tasmota.discovery_timeout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func runDiscover(ctx context.Context, out io.Writer, timeout time.Duration, asJSON bool) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, version)
	defer log.Close()

	if timeout <= 0 {
		timeout = cfg.GetDiscoveryTimeout()
	}

	pool := mqtt.NewPool(cfg.MQTT)
	pool.SetLogger(log)
	defer pool.Close()

	broker := mqtt.DefaultBroker(cfg.MQTT)
	hub := transport.NewHub(pool, cfg.GetCommandTimeout())
	factory := func(ctx context.Context, topic string) (*device.Device, error) {
		t, err := hub.Open(ctx, broker, topic)
		if err != nil {
			return nil, err
		}
		return device.New(topic, t, device.Basic(), device.WithLogger(log))
	}

	engine := discovery.NewEngine(pool.Endpoint(broker), factory, cfg.Tasmota.GroupTopic)
	engine.SetLogger(log)

	results, err := engine.Discover(ctx, timeout)
	if err != nil {
		return fmt.Errorf("discovering devices: %w", err)
	}
	defer func() {
		for _, r := range results {
			if r.Device != nil {
				_ = r.Device.Close()
			}
		}
	}()

	return printResults(out, results, asJSON)
}

func printResults(out io.Writer, results []discovery.Result, asJSON bool) error {
	if asJSON {
		type entry struct {
			Topic string       `json:"topic"`
			State device.State `json:"state"`
		}
		entries := make([]entry, 0, len(results))
		for _, r := range results {
			entries = append(entries, entry{Topic: r.Topic, State: r.State})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "no devices found")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tONLINE\tPOWER\tRSSI")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Topic, online(r.State), power(r.State), rssi(r.State))
	}
	return tw.Flush()
}

func online(s device.State) string {
	if s.Online == nil {
		return "-"
	}
	if *s.Online {
		return "yes"
	}
	return "no"
}

func power(s device.State) string {
	if len(s.Power) == 0 {
		return "-"
	}
	out := ""
	for i := 1; i <= len(s.Power); i++ {
		st, ok := s.Power[i]
		if !ok {
			continue
		}
		if out != "" {
			out += ","
		}
		out += st.String()
	}
	return out
}

func rssi(s device.State) string {
	if s.System == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", s.System.RSSI)
}
