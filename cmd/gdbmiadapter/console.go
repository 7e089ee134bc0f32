package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/config"
	"github.com/stratos/gdbmiadapter/internal/console"
	"github.com/stratos/gdbmiadapter/internal/mi"
	"github.com/stratos/gdbmiadapter/internal/process"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open an interactive console directly against a standalone GDB instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		return runConsole(cmd.Context(), cfg.GDBExecutable, logger)
	},
}

func runConsole(ctx context.Context, gdbPath string, log *zap.Logger) error {
	gdb, err := process.SpawnGDB(ctx, gdbPath, nil, nil, log)
	if err != nil {
		return fmt.Errorf("gdbmiadapter console: %w", err)
	}
	defer gdb.Kill(nil)

	if err := gdb.AwaitBanner(ctx, gdb.Records(), 10*time.Second); err != nil {
		return fmt.Errorf("gdbmiadapter console: %w", err)
	}

	model := console.New(gdb)
	p := tea.NewProgram(model, tea.WithAltScreen())

	go pumpConsoleRecords(gdb, p)

	_, err = p.Run()
	return err
}

func pumpConsoleRecords(gdb *process.GDB, p *tea.Program) {
	for rec := range gdb.Records() {
		var line console.Line
		switch rec.Kind {
		case mi.RecordStream:
			switch rec.Stream.Channel {
			case mi.StreamTarget:
				line = console.Line{Channel: "target", Text: rec.Stream.Text}
			case mi.StreamLog:
				line = console.Line{Channel: "log", Text: rec.Stream.Text}
			default:
				line = console.Line{Channel: "console", Text: rec.Stream.Text}
			}
		case mi.RecordResult:
			line = console.Line{Channel: "mi", Text: rec.Raw}
		case mi.RecordAsync:
			line = console.Line{Channel: "mi", Text: rec.Raw}
		default:
			continue
		}
		p.Send(console.LineMsg(line))
	}
}
