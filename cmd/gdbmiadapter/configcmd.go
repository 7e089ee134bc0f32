package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/stratos/gdbmiadapter/internal/config"
)

// Grounded on the teacher's cmd/cli/config.go: an --init flag that
// writes a default config file (refusing to clobber an existing one)
// and a --show flag that pretty-prints the effective config as YAML.
var (
	configInit bool
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create the adapter's process-level config file",
	Run:   runConfigCmd,
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "write a default config file")
	configCmd.Flags().BoolVar(&configShow, "show", true, "show the effective configuration")
	rootCmd.AddCommand(configCmd)
}

func runConfigCmd(cmd *cobra.Command, args []string) {
	if configInit {
		initConfigFile()
		return
	}
	if configShow {
		showEffectiveConfig()
	}
}

func initConfigFile() {
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	path := cfgFile
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Println(errStyle.Render(err.Error()))
			os.Exit(1)
		}
		path = p
	}

	if err := config.Defaults().Save(path); err != nil {
		fmt.Println(warn.Render(err.Error()))
		return
	}
	fmt.Println(ok.Render("wrote " + path))
}

func showEffectiveConfig() {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Render(err.Error()))
		os.Exit(1)
	}
	out, err := cfg.Render()
	if err != nil {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Render(err.Error()))
		os.Exit(1)
	}
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true).Render("Effective configuration:"))
	fmt.Print(out)
}
