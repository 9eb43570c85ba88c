// Package commands implements the netmdfs CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "netmdfs",
	Short: "netmdfs - NetMD MiniDisc overlay filesystem",
	Long: `netmdfs mounts a NetMD MiniDisc as a user-space filesystem.

A disc carries both ordinary audio tracks and an overlay file system (TFS)
whose metadata is encoded into a reserved region of the disc's UTOC. Each
TFS file corresponds to a hidden disc track; mounting exposes /$audio (the
disc's ordinary tracks), /$system (diagnostics), and the TFS tree itself.

Use "netmdfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); no file is read when unset")

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func configFile() string {
	return cfgFile
}

func exitf(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
