package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blepwn/internal/config"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/devicefactory"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for nearby Bluetooth Low Energy devices and list them, flagging the
ones advertising the target name.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanTargetsOnly bool
	scanVerbose     bool
)

func init() {
	initScanFlags()
}

func initScanFlags() {
	f := scanCmd.Flags()
	f.DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	f.StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	f.StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	f.BoolVar(&scanTargetsOnly, "targets", false, "Only list devices advertising the target name")
	f.BoolVar(&scanVerbose, "verbose", false, "Enable debug logging")
}

// scanEntry is the latest advertisement of one device.
type scanEntry struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	RSSI             int      `json:"rssi"`
	Connectable      bool     `json:"connectable"`
	Services         []string `json:"services,omitempty"`
	ManufacturerData string   `json:"manufacturer_data,omitempty"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
	TxPower          int      `json:"tx_power,omitempty"`
	Target           bool     `json:"target"`
	Count            int      `json:"count"`

	lastSeen time.Time
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	if scanDuration <= 0 {
		return fmt.Errorf("--duration must be positive, got %s", scanDuration)
	}

	cfg, err := loadConfig(cmd, func(c *config.Config) {
		if len(scanServices) > 0 {
			c.Scan.Services = scanServices
		}
	})
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport, err := devicefactory.NewTransport(logger, cfg.Scan.ProbeInterval)
	if err != nil {
		return fmt.Errorf("failed to open BLE transport: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.WithError(err).Debug("Closing BLE transport failed")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, scanDuration)
	defer cancel()

	out := cmd.OutOrStdout()
	var progress *ProgressPrinter
	if isTerminal(out) && scanFormat == "table" {
		progress = NewCountdownProgressPrinter(out, "Scanning for BLE devices", "scanning", scanDuration)
		progress.Start()
		defer progress.Stop()
	}

	var mu sync.Mutex
	seen := orderedmap.New[string, *scanEntry]()
	opts := device.ScanOptions{
		AllowDuplicates: true,
		ServiceUUIDs:    cfg.Scan.Services,
	}
	err = transport.Scan(ctx, opts, func(adv device.Advertisement) {
		mu.Lock()
		defer mu.Unlock()
		e, ok := seen.Get(adv.Addr())
		if !ok {
			e = &scanEntry{Address: adv.Addr()}
			seen.Set(adv.Addr(), e)
		}
		e.update(adv, cfg.Target.Name)
	})
	if progress != nil {
		progress.Stop()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}

	mu.Lock()
	entries := make([]*scanEntry, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		if scanTargetsOnly && !pair.Value.Target {
			continue
		}
		entries = append(entries, pair.Value)
	}
	mu.Unlock()

	// Strongest signal first; discovery order breaks ties.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RSSI > entries[j].RSSI
	})

	if scanFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return displayScanTable(out, entries)
}

func (e *scanEntry) update(adv device.Advertisement, target string) {
	// Scan responses often carry no name; keep the one seen earlier.
	if name := adv.LocalName(); name != "" {
		e.Name = name
	}
	e.RSSI = adv.RSSI()
	e.Connectable = e.Connectable || adv.Connectable()
	if services := adv.Services(); len(services) > 0 {
		e.Services = device.NormalizeUUIDs(services)
	}
	if md := adv.ManufacturerData(); len(md) > 0 {
		e.ManufacturerData = hex.EncodeToString(md)
		e.Manufacturer = device.DescribeManufacturer(md)
	}
	if tx := adv.TxPowerLevel(); tx != 0 {
		e.TxPower = tx
	}
	e.Target = e.Name == target
	e.Count++
	e.lastSeen = time.Now()
}

func displayScanTable(w io.Writer, entries []*scanEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	highlight := color.New(color.FgGreen, color.Bold)
	if !isTerminal(w) {
		highlight.DisableColor()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tVENDOR\tSERVICES\tLAST SEEN")
	fmt.Fprintln(tw, strings.Repeat("-", 80))

	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		if e.Target {
			name = highlight.Sprint(name + " *")
		}

		services := strings.Join(e.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(tw, "%s\t%s\t%d dBm\t%s\t%s\t%s ago\n",
			name, e.Address, e.RSSI, e.Manufacturer, services, time.Since(e.lastSeen).Truncate(time.Second))
	}
	return tw.Flush()
}
