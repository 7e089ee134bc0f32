package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gdbmiadapter",
	Short: "A debug adapter bridging a front-end protocol with GDB/MI",
	Long: `gdbmiadapter bridges a front-end IDE's request/response/event
protocol with GDB's Machine Interface: it translates breakpoint,
stepping, and inspection requests into MI commands, parses MI results,
and emits protocol events (stopped, continued, output, terminated).

Usage:
  gdbmiadapter serve              Listen for front-end connections
  gdbmiadapter console            Attach an interactive GDB console
  gdbmiadapter version            Show version info`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg)
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := config.BindFlags(rootCmd, v); err != nil {
		panic(fmt.Sprintf("gdbmiadapter: binding flags: %v", err))
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gdbmiadapter.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(versionCmd)
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogFile != "" {
		zcfg.OutputPaths = []string{cfg.LogFile}
		zcfg.ErrorOutputPaths = []string{cfg.LogFile}
	}
	return zcfg.Build()
}
