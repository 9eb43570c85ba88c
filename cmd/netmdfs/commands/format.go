package commands

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/netmdfs/netmdfs/internal/cache"
	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/netmdfs/netmdfs/internal/transfer"
	"github.com/spf13/cobra"
)

var (
	formatDevice string
	formatYes    bool
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Write an empty TFS tree to the disc's UTOC",
	Long: `Format discards any existing TFS tree and writes a fresh, empty one.
It does not erase ordinary audio tracks or any hidden h_fs_XX tracks
still present on disc — those become orphaned backing tracks until
removed by hand.

Examples:
  netmdfs format --device mock`,
	RunE: runFormat,
}

func init() {
	formatCmd.Flags().StringVar(&formatDevice, "device", "", "device to format (\"mock\" for the in-memory fake)")
	formatCmd.Flags().BoolVarP(&formatYes, "yes", "y", false, "skip the confirmation prompt")
}

func runFormat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(formatDevice)
	if err != nil {
		return err
	}

	if !formatYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("This will discard the existing TFS tree on %q, continue", cfg.Device),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			return fmt.Errorf("format cancelled")
		}
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

	c.SetRoot(fstree.NewDirectory(""))
	if err := c.Flush(ctx, coord, coord); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	fmt.Println("formatted.")
	return nil
}
