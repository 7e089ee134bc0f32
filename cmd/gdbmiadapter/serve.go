package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stratos/gdbmiadapter/internal/config"
	"github.com/stratos/gdbmiadapter/internal/dapadapter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for front-end connections and bridge each to a GDB/MI session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info("gdbmiadapter: listening", zap.String("addr", cfg.ListenAddr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn("gdbmiadapter: accept failed", zap.Error(err))
				continue
			}
		}
		sess := dapadapter.NewSession(conn, log)
		go func() {
			defer conn.Close()
			if err := sess.Serve(ctx); err != nil {
				log.Warn("gdbmiadapter: session ended with error", zap.Error(err))
			}
		}()
	}
}
