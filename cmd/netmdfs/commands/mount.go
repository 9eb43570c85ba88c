package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netmdfs/netmdfs/internal/cache"
	"github.com/netmdfs/netmdfs/internal/fusebridge"
	"github.com/netmdfs/netmdfs/internal/logger"
	"github.com/netmdfs/netmdfs/internal/metrics"
	"github.com/netmdfs/netmdfs/internal/transfer"
	"github.com/netmdfs/netmdfs/internal/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	mountDevice     string
	mountPoint      string
	mountForeground bool
	mountMetricAddr string
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount the NetMD overlay filesystem",
	Long: `Mount opens the configured NetMD device, loads the TFS tree from the
disc's UTOC, and serves it as a FUSE filesystem at the mount point.

Examples:
  # Mount against the in-memory mock device, useful for trying netmdfs
  # without hardware
  netmdfs mount --device mock --mount ./mnt

  # Mount with a custom config file
  netmdfs mount --config /etc/netmdfs/config.yaml`,
	RunE: runMount,
}

func init() {
	mountCmd.Flags().StringVar(&mountDevice, "device", "", "device to mount (\"mock\" for the in-memory fake)")
	mountCmd.Flags().StringVar(&mountPoint, "mount", "", "host directory to mount the filesystem at")
	mountCmd.Flags().BoolVarP(&mountForeground, "foreground", "f", true, "run in the foreground")
	mountCmd.Flags().StringVar(&mountMetricAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(mountDevice)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if mountPoint != "" {
		cfg.MountPoint = mountPoint
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	driver, err := openDevice(cfg.Device)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	var collectors *metrics.Collectors
	if mountMetricAddr != "" {
		collectors = metrics.NewCollectors(reg)
		go serveMetrics(mountMetricAddr, reg)
	}

	c := cache.New(driver)
	coord := transfer.New(driver, collectors)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Init(ctx); err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	if err := c.RefreshCache(ctx, coord); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}

	fs := vfs.New(c, coord, collectors)

	if cfg.FlushIdleInterval > 0 {
		go idleFlush(ctx, c, coord, cfg.FlushIdleInterval)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down, flushing TFS")
		_ = c.Flush(context.Background(), coord, coord)
		cancel()
	}()

	logger.Info("mounted netmdfs", logger.KeyPath, cfg.MountPoint, "device", cfg.Device)
	return fusebridge.Mount(ctx, fs, cfg.MountPoint)
}

func idleFlush(ctx context.Context, c *cache.Cache, coord *transfer.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Flush(ctx, coord, coord); err != nil {
				logger.Warn("idle flush failed", logger.KeyError, err.Error())
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", logger.KeyError, err.Error())
	}
}
