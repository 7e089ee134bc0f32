package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func printVersion() {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB"))
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)

	fmt.Println(title.Render("gdbmiadapter"))
	fmt.Printf("%s %s\n", label.Render("Version:"), value.Render(Version))
	fmt.Printf("%s %s\n", label.Render("Commit:"), value.Render(GitCommit))
	fmt.Printf("%s %s\n", label.Render("Built:"), value.Render(BuildDate))
}
