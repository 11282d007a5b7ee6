package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/accounts"
	"github.com/MarcoPoloResearchLab/foodshare/internal/auth"
	"github.com/MarcoPoloResearchLab/foodshare/internal/config"
	"github.com/MarcoPoloResearchLab/foodshare/internal/database"
	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/MarcoPoloResearchLab/foodshare/internal/logging"
	"github.com/MarcoPoloResearchLab/foodshare/internal/seed"
	"github.com/MarcoPoloResearchLab/foodshare/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile     string
	fixturePath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "foodshare-api",
		Short: "Food donation exchange service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newReconcileCommand(), newExpireCommand(), newSeedCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Document store driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Document store DSN or SQLite path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().Duration("expiry-sweep-interval", defaults.GetDuration("ledger.expiry_sweep_interval"), "Interval between announcement expiry sweeps")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "ledger.expiry_sweep_interval", "expiry-sweep-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &configNotFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	return nil
}

// application holds the services shared by the server and the maintenance commands.
type application struct {
	config   config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	ledger   *ledger.Service
	accounts *accounts.Service
}

func openApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, err
	}

	ledgerService, err := ledger.NewService(ledger.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ledger.NewUUIDProvider(),
		Feed:       feed.NewDispatcher(appConfig.FeedBufferSize),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	accountService, err := accounts.NewService(accounts.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		config:   appConfig,
		logger:   logger,
		db:       db,
		ledger:   ledgerService,
		accounts: accountService,
	}, nil
}

func (a *application) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(app.config.SigningSecret),
		Issuer:        app.config.TokenIssuer,
		Audience:      app.config.TokenAudience,
		TokenTTL:      app.config.TokenTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Ledger:   app.ledger,
		Accounts: app.accounts,
		Tokens:   tokenIssuer,
		Logger:   app.logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Request contexts derive from signalCtx so open record streams end on shutdown.
	httpServer := &http.Server{
		Addr:        app.config.HTTPAddress,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	go sweepExpiredAnnouncements(signalCtx, app.ledger, app.config.ExpirySweepInterval, app.logger)

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func sweepExpiredAnnouncements(ctx context.Context, service *ledger.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := service.ExpireAnnouncements(ctx)
			if err != nil {
				logger.Warn("announcement expiry sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				logger.Info("announcements expired", zap.Int("count", expired))
			}
		}
	}
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute profile counters and need responders from stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.ledger.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			app.logger.Info("reconcile finished",
				zap.Int("profiles_repaired", report.ProfilesRepaired),
				zap.Int("needs_repaired", report.NeedsRepaired))
			return nil
		},
	}
}

func newExpireCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Mark announcements past their expiration date as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			expired, err := app.ledger.ExpireAnnouncements(cmd.Context())
			if err != nil {
				return err
			}
			app.logger.Info("expiry sweep finished", zap.Int("expired", expired))
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts, announcements and needs from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := seed.LoadFile(fixturePath)
			if err != nil {
				return err
			}

			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			seeder, err := seed.NewSeeder(seed.Config{
				Ledger:   app.ledger,
				Accounts: app.accounts,
				Logger:   app.logger,
			})
			if err != nil {
				return err
			}
			_, err = seeder.Apply(cmd.Context(), fixtures)
			return err
		},
	}
	cmd.Flags().StringVar(&fixturePath, "file", "fixtures/demo.yaml", "Path to the fixtures file")
	return cmd
}
