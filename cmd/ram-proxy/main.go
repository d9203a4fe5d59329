package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/ram-browser/internal/config"
	"github.com/Sternrassler/ram-browser/pkg/browser"
	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command with its flags bound to v.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "ram-proxy",
		Short:         "HTTP/JSON front end for browsing Rick and Morty characters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Setup(v, configFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = run(ctx, cfg)
			if err != nil {
				logger := logging.NewLogger(logging.ComponentProxy)
				logger.Error().Err(err).Msg("ram-proxy failed")
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default ./ram-proxy.yaml)")
	flags.StringP("port", "p", "", "Listen port")
	flags.String("base-url", "", "Rick and Morty API base URL")
	flags.String("user-agent", "", "User-Agent sent to the API")
	flags.String("redis-url", "", "Redis address or redis:// URL; empty disables caching")
	flags.Int("page-size", 0, "Characters per page")
	flags.Int("prefetch-distance", 0, "Items left beyond the last visible one before the next page loads")
	flags.Duration("timeout", 0, "Timeout per API request")
	flags.Duration("cache-ttl", 0, "Cache lifetime for responses without freshness headers")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-pretty", false, "Human readable console logs")

	lo.Must0(v.BindPFlag(config.KeyPort, flags.Lookup("port")))
	lo.Must0(v.BindPFlag(config.KeyBaseURL, flags.Lookup("base-url")))
	lo.Must0(v.BindPFlag(config.KeyUserAgent, flags.Lookup("user-agent")))
	lo.Must0(v.BindPFlag(config.KeyRedisURL, flags.Lookup("redis-url")))
	lo.Must0(v.BindPFlag(config.KeyPageSize, flags.Lookup("page-size")))
	lo.Must0(v.BindPFlag(config.KeyPrefetchDistance, flags.Lookup("prefetch-distance")))
	lo.Must0(v.BindPFlag(config.KeyTimeout, flags.Lookup("timeout")))
	lo.Must0(v.BindPFlag(config.KeyCacheTTL, flags.Lookup("cache-ttl")))
	lo.Must0(v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level")))
	lo.Must0(v.BindPFlag(config.KeyLogPretty, flags.Lookup("log-pretty")))

	return cmd
}

// run serves the proxy until ctx is done.
func run(ctx context.Context, cfg config.Config) error {
	logging.Setup(cfg.Logging())
	logger := logging.NewLogger(logging.ComponentProxy)

	var rdb *redis.Client
	opts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	if opts != nil {
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	ramClient, err := client.New(cfg.Client(rdb))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	b := browser.New(ramClient, cfg.Browser(), logging.NewLogger(logging.ComponentBrowser))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(b, ramClient, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(ctx)
	})
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("base_url", cfg.BaseURL).
			Str("user_agent", cfg.UserAgent).
			Msg("Starting ram-proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("Shutting down ram-proxy")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
