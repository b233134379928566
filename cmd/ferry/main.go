// ferry runs line scripts of string operations against an interpreter
// heap, through the same entry points a native extension would call.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ferry/config"
)

var rootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "Native strings in an interpreter heap",
	Long: `ferry executes scripts of string operations against an interpreter heap,
exercising allocation, boxing, collection and the exception channel.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	verbosity  int
	logFile    string

	// settings is the configuration resolved by setup.
	settings *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to ferry.toml (default: search upward from the working directory)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}

// setup loads the configuration and configures logging before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	switch {
	case configPath != "":
		settings, err = config.LoadFile(configPath)
	default:
		var wd string
		if wd, err = os.Getwd(); err == nil {
			settings, err = config.FindAndLoad(wd)
		}
	}
	if err != nil {
		return err
	}
	if settings == nil {
		settings = config.Default()
	}

	level := max(verbosity, settings.Log.Verbosity)
	path := logFile
	if path == "" {
		path = settings.Log.File
	}
	if path != "" {
		commonlog.Configure(level, &path)
	} else {
		commonlog.Configure(level, nil)
	}
	if settings.Path != "" {
		commonlog.GetLogger("ferry.cli").Debugf("using configuration %s", settings.Path)
	}
	return nil
}

func main() {
	rootCmd.Version = version
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ferry:", err)
		os.Exit(1)
	}
}
