package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/netmdfs/netmdfs/internal/cache"
	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/transfer"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusDevice string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the disc's track listing and TFS tree",
	Long: `Status opens the configured device, reads its UTOC, and prints a table
of every track together with its TFS role: a hidden TFS-backing track if
its title is an h_fs_XX name, otherwise an ordinary audio track.

Examples:
  netmdfs status --device mock`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDevice, "device", "", "device to inspect (\"mock\" for the in-memory fake)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(statusDevice)
	if err != nil {
		return err
	}
	driver, err := openDevice(cfg.Device)
	if err != nil {
		return err
	}

	ctx := context.Background()
	c := cache.New(driver)
	coord := transfer.New(driver, nil)
	if err := c.Init(ctx); err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	if err := c.RefreshCache(ctx, coord); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Index", "Title", "Encoding", "Bytes", "Role"})

	tracks := c.Tracks()
	for i, t := range tracks {
		role := "audio"
		if id, ok := cache.HiddenTrackID(t.Title); ok {
			role = fmt.Sprintf("tfs backing (file id %d)", id)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i),
			t.Title,
			encodingName(t.Encoding),
			fmt.Sprintf("%d", c.SectorLength(i)),
			role,
		})
	}
	table.Render()

	fmt.Printf("\nTFS tree: %d top-level entries\n", len(c.Root().Names()))
	return nil
}

func encodingName(e device.Encoding) string {
	switch e {
	case device.EncodingSP:
		return "SP"
	case device.EncodingLP:
		return "LP"
	case device.EncodingLP2:
		return "LP2"
	default:
		return "?"
	}
}
