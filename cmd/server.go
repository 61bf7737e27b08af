package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/L-L777/classGrabber/internal/config"
	"github.com/L-L777/classGrabber/internal/db"
	"github.com/L-L777/classGrabber/internal/grab"
	"github.com/L-L777/classGrabber/internal/jwxt"
	"github.com/L-L777/classGrabber/internal/logbook"
	"github.com/L-L777/classGrabber/internal/migrate"
	"github.com/L-L777/classGrabber/internal/store"
	"github.com/L-L777/classGrabber/internal/web"
)

func newServerCmd() *cobra.Command {
	var (
		migrateUp bool
		logsDir   string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web API + grab controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			mgr, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg := mgr.Get()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			book, err := logbook.Open(logsDir)
			if err != nil {
				return err
			}
			defer book.Close()
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				With().Timestamp().Str("component", "server").Logger()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			hashKey, blockKey, err := cfg.SessionKeys()
			if err != nil && cfg.AccessPasswordBcrypt != "" {
				return err
			}

			repo := store.NewRepo(d)
			client := jwxt.New(cfg.BaseURL)
			ctrl := grab.New(client, repo, book, grab.Options{
				GatePoll: cfg.GatePoll(),
			})

			if err := mgr.Watch(ctx, log, nil); err != nil {
				log.Warn().Err(err).Msg("config hot reload unavailable")
			}

			srv := &web.Server{
				Sessions: web.NewSessions(hashKey, blockKey, cfg.AccessPasswordBcrypt),
				Courses:  repo,
				Remote:   client,
				Runner:   ctrl,
				Config:   mgr,
				Logs:     book,
				Log:      log,
			}

			err = web.Start(ctx, cfg.ListenAddr, srv.Routes(), log)

			// Let a run in flight wind down before the process exits.
			ctrl.Stop()
			if done := ctrl.Done(); done != nil {
				<-done
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().StringVar(&logsDir, "logs", "logs", "directory for activity logs")
	return cmd
}
