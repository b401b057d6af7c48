package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justinpbarnett/devcompanion/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every subcommand. Each one,
// when set, overrides the value from config files and the environment.
type globalFlags struct {
	configPath string
	dir        string
	logLevel   string
	logFile    string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "devcompanion",
		Short:         "Report coding-assistant sessions and serve remote command execution",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, watchFlags{})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (skips discovery)")
	pf.StringVar(&g.dir, "dir", "", "transcript directory to watch")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFile, "log-file", "", "write logs to a size-rotated file")
	pf.BoolVar(&g.logJSON, "log-json", false, "emit JSON logs")

	root.AddCommand(
		newWatchCmd(g),
		newConfigCmd(g),
		newExecCmd(g),
		newVersionCmd(),
		newUpdateCmd(),
	)
	return root
}

func (g *globalFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if g.dir != "" {
		cfg.Watch.Dir = g.dir
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFile != "" {
		cfg.Log.File = g.logFile
	}
	if g.logJSON {
		on := true
		cfg.Log.JSON = &on
	}
	return cfg, nil
}
