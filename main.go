// Command stream-notifier is a Discord bot that announces Kick and Twitch
// streams matching a keyword. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the configured state backend (JSON file, Postgres or Redis) and
//     merges the optional seed file.
//   - Connects to the Discord gateway and serves operator commands.
//   - Runs the poll loop that posts and removes live notifications.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/noxrp/stream-notifier/config"
	"github.com/noxrp/stream-notifier/db"
	"github.com/noxrp/stream-notifier/discord"
	"github.com/noxrp/stream-notifier/kickapi"
	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/poller"
	"github.com/noxrp/stream-notifier/reconcile"
	"github.com/noxrp/stream-notifier/server"
	"github.com/noxrp/stream-notifier/store"
	"github.com/noxrp/stream-notifier/telemetry"
	"github.com/noxrp/stream-notifier/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is a no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set.
	shutdownTracing, err := telemetry.InitTracing(context.Background(), telemetry.TracingConfig{
		ServiceName:    "stream-notifier",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("notifier exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func run(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	state, err := st.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.SeedFile != "" {
		seed, err := store.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		if n := state.ApplySeed(seed); n > 0 {
			slog.Info("seed file applied", slog.String("path", cfg.SeedFile), slog.Int("added", n))
			if err := st.Save(ctx, state); err != nil {
				return err
			}
		}
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	kick := kickapi.New(cfg.KickClientID, cfg.KickClientSecret, hc)
	twitch := twitchapi.NewHelixClient(cfg.TwitchClientID, cfg.TwitchClientSecret, hc)
	probeToken(ctx, "kick", kick.Tokens())
	probeToken(ctx, "twitch", twitch.Tokens())

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	var roles reconcile.RoleManager
	if rm := discord.NewRoleManager(dg, cfg.GuildID, cfg.LiveRoleID, slog.Default()); rm != nil {
		roles = rm
	} else {
		slog.Info("live role disabled (DISCORD_GUILD_ID or STREAMER_LIVE_ROLE_ID unset)")
	}
	rec := reconcile.New(discord.NewNotifier(dg), roles)

	p := poller.New(state, poller.Config{
		Store:      st,
		Kick:       kick,
		Twitch:     twitch,
		Reconciler: rec,
		Logger:     slog.Default(),
	})

	h := discord.NewHandler(dg, p, cfg.Prefix, cfg.AllowedRoles(), slog.Default())
	dg.AddHandler(h.OnMessageCreate)

	if err := discord.Login(ctx, dg, slog.Default()); err != nil {
		return err
	}
	defer func() {
		if err := dg.Close(); err != nil {
			slog.Warn("discord close failed", slog.Any("err", err))
		}
	}()
	slog.Info("discord session ready",
		slog.Bool("kick_enabled", kick.Enabled()),
		slog.Bool("twitch_enabled", twitch.Enabled()),
		slog.Int("interval_seconds", state.Settings.IntervalSeconds()),
	)

	go func() {
		if err := server.Start(ctx, p, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	return p.Run(ctx)
}

// openStore returns the configured backend and a close func for its client.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	initState := store.InitFunc(cfg.InitialState)
	switch cfg.StateBackend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return nil, nil, err
		}
		// Versioned migrations first, embedded SQL for deployments without migration files.
		if err := db.RunMigrations(database); err != nil {
			slog.Warn("versioned migrations failed, falling back to embedded SQL", slog.Any("err", err), slog.String("component", "db_migrate"))
			if err := db.Migrate(ctx, database); err != nil {
				_ = database.Close()
				return nil, nil, err
			}
		}
		closeFn := func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}
		slog.Info("state backend ready", slog.String("backend", "postgres"), slog.String("key", cfg.StateKey))
		return store.NewPostgresStore(database, cfg.StateKey, initState), closeFn, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Error("failed to close redis", slog.Any("err", err))
			}
		}
		slog.Info("state backend ready", slog.String("backend", "redis"), slog.String("key", cfg.StateKey))
		return store.NewRedisStore(client, cfg.StateKey, initState), closeFn, nil
	default:
		slog.Info("state backend ready", slog.String("backend", "file"), slog.String("path", cfg.DataFile))
		return store.NewFileStore(cfg.DataFile, initState), func() {}, nil
	}
}

// probeToken fetches an app token at startup so bad credentials show up in
// the log right away. Only the token tail is logged.
func probeToken(ctx context.Context, name string, ts *platform.TokenSource) {
	if !ts.Enabled() {
		slog.Info("platform disabled (missing client credentials)", slog.String("platform", name))
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	tok, err := ts.Get(pctx)
	if err != nil {
		slog.Warn("app token fetch failed", slog.String("platform", name), slog.Any("err", err))
		return
	}
	if len(tok) > 6 {
		slog.Info("app token acquired", slog.String("platform", name), slog.String("tail", "***"+tok[len(tok)-6:]))
	}
}

// setupLogging configures the default logger. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}
