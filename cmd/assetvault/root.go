package main

import (
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	tailLogs   int
	noProgress bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "assetvault",
		Short:   "Local store for 3D avatar assets",
		Version: Version,
		Long: `assetvault manages a local library of avatars, wearables, world objects and
other assets: their metadata documents, per-asset data folders and images.

ASSETS:
  list        List assets
  search      Filter assets by text, category, tags or supported avatars
  delete      Delete assets and their files
  sweep       Remove images no asset references
  stats       Show asset counts per kind

DATA DIRECTORY:
  migrate     Copy the data directory to a new location and switch to it
  import      Merge an exported archive into the data directory
  export      Export the data directory to a zip archive or folder
  backup      Snapshot, list or schedule metadata backups

DIAGNOSTICS:
  logs        Load the data directory and show recent log entries
  prefs       Show the preferences document
  config      Create a config file or print its schema
  metrics     Serve Prometheus metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate("assetvault {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/assetvault/config.yaml)")
	pf.StringVarP(&opts.dataDir, "data-dir", "d", "", "Data directory (overrides preferences and config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.IntVar(&opts.tailLogs, "tail-logs", 0, "Print the last N log entries after the command")
	pf.BoolVar(&opts.noProgress, "no-progress", false, "Hide progress bars")

	root.AddCommand(
		newListCmd(opts),
		newSearchCmd(opts),
		newDeleteCmd(opts),
		newSweepCmd(opts),
		newStatsCmd(opts),
		newMigrateCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newBackupCmd(opts),
		newLogsCmd(opts),
		newPrefsCmd(opts),
		newConfigCmd(opts),
		newMetricsCmd(opts),
	)
	return root
}
