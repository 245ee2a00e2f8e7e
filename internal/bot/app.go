// Package bot wires configuration, the platform client, and the
// moderation components into one runnable process.
package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"wardenbot/internal/audit"
	"wardenbot/internal/config"
	"wardenbot/internal/grant"
	"wardenbot/internal/highlight"
	"wardenbot/internal/platform"
	"wardenbot/internal/platform/discord"
	"wardenbot/internal/router"
	"wardenbot/internal/telemetry"
	"wardenbot/internal/timeout"
	"wardenbot/pkg/logx"
)

// TokenEnv overrides discord.token from the environment so the secret
// can stay out of the config file.
const TokenEnv = "WARDENBOT_DISCORD_TOKEN"

type App struct {
	cfgm *config.Manager
	sup  *Supervisor

	logs *logx.Service
	log  logx.Logger

	client  platform.Client
	gateway *discord.Client
	store   *timeout.Store
	sweep   *timeout.Sweeper
	grants  *grant.Coordinator
	gate    *highlight.Gate
	audits  audit.Store
	routes  *router.Router
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Channel: logx.ChannelConfig{
			Enabled:    cfg.Logging.Channel.Enabled,
			MinLevel:   cfg.Logging.Channel.MinLevel,
			RatePerSec: cfg.Logging.Channel.RatePerSec,
		},
	}, nil)
	log = log.With(logx.String("comp", "app"))

	token := strings.TrimSpace(cfg.Discord.Token)
	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		token = env
	}
	client, err := discord.New(discord.Config{
		Token:   token,
		GuildID: cfg.Discord.GuildID,
	}, logs.Logger().With(logx.String("comp", "discord")))
	if err != nil {
		return nil, err
	}
	// Let warnings and errors reach the log channel once it resolves.
	logs.SetSender(client)

	store, err := timeout.Open(cfg.Timeouts.File, logs.Logger().With(logx.String("comp", "timeouts")))
	if err != nil {
		// Unreadable grant state is fatal: silently forgetting grants
		// would leave roles on users forever.
		return nil, err
	}

	var audits audit.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		audits, err = audit.Open(audit.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, logs.Logger().With(logx.String("comp", "audit")))
		if err != nil {
			return nil, err
		}
	}

	cooldown, _ := config.ParseDurationOrDefault("highlight.cooldown", cfg.Highlight.Cooldown, highlight.DefaultCooldown)
	gate := highlight.NewGate(client, cooldown, logs.Logger().With(logx.String("comp", "highlight")))

	grants := grant.New(client, store, grant.Config{
		TemporaryRoleNames: cfg.Roles.Temporary,
		SelfServiceRoleIDs: cfg.Roles.Join,
	}, logs.Logger().With(logx.String("comp", "grants")))

	sweep := timeout.NewSweeper(store, client, logs.Logger().With(logx.String("comp", "sweep")))

	routes := router.New(client, cfgm, grants, gate, audits,
		func() { os.Exit(1) },
		logs.Logger().With(logx.String("comp", "router")))

	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		telemetry.Init()
	}

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		client:  client,
		gateway: client,
		store:   store,
		sweep:   sweep,
		grants:  grants,
		gate:    gate,
		audits:  audits,
		routes:  routes,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, a.log)
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validate)

	handlers := platform.Handlers{
		Ready: func() { a.onReady(runCtx) },
		MessageCreate: func(msg *platform.Message) {
			a.routes.HandleMessage(runCtx, msg)
		},
		MemberJoin:   func(m *platform.Member) { a.onMemberJoin(runCtx, m) },
		MemberLeave:  func(m *platform.Member) { a.onMemberLeave(runCtx, m) },
		MemberUpdate: func(before, after *platform.Member) { a.onMemberUpdate(runCtx, before, after) },
	}
	if err := a.gateway.Start(runCtx, handlers); err != nil {
		a.sup.Cancel()
		return err
	}

	cfg := a.cfgm.Get()
	pulse, _ := config.ParseDurationOrDefault("timeouts.sweep_interval", cfg.Timeouts.SweepInterval, timeout.DefaultPulse)
	if err := a.sweep.Start(runCtx, pulse); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sup.Go("config-watch", a.cfgm.Watch)
	a.sup.Go("config-apply", a.applyLoop)

	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		addr := cfg.Telemetry.Addr
		if strings.TrimSpace(addr) == "" {
			addr = "127.0.0.1:9190"
		}
		a.sup.Go("telemetry", func(ctx context.Context) error {
			return telemetry.Serve(ctx, addr)
		})
	}

	a.log.Info("bot started")
	return nil
}

// Done is closed when the app fails fatally or is stopped.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := a.sweep.Stop(stopCtx); err != nil {
		a.log.Warn("sweep did not stop cleanly", logx.Err(err))
	}
	if a.sup != nil {
		_ = a.sup.Stop(stopCtx)
	}
	_ = a.gateway.Stop(stopCtx)
	if a.audits != nil {
		_ = a.audits.Close()
	}
	_ = a.logs.Close()
	return nil
}

// onReady fires on every gateway (re)connect.
func (a *App) onReady(ctx context.Context) {
	cfg := a.cfgm.Get()
	if name := strings.TrimSpace(cfg.Channels.Log); name != "" {
		ch, err := platform.ChannelByName(ctx, a.client, name)
		if err != nil {
			a.log.Warn("cannot resolve log channel", logx.String("name", name), logx.Err(err))
		} else {
			a.logs.SetChannelTarget(ch.ID)
		}
	}
	a.log.Info("bot online and listening for commands")
}

// applyLoop pushes hot-reloaded config into the running components.
// Token and guild changes require a restart; everything else applies live.
func (a *App) applyLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return nil
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
				Channel: logx.ChannelConfig{
					Enabled:    cfg.Logging.Channel.Enabled,
					MinLevel:   cfg.Logging.Channel.MinLevel,
					RatePerSec: cfg.Logging.Channel.RatePerSec,
				},
			})
			a.grants.Apply(grant.Config{
				TemporaryRoleNames: cfg.Roles.Temporary,
				SelfServiceRoleIDs: cfg.Roles.Join,
			})
			if d, err := config.ParseDurationOrDefault("highlight.cooldown", cfg.Highlight.Cooldown, highlight.DefaultCooldown); err == nil {
				a.gate.SetCooldown(d)
			}
			if d, err := config.ParseDurationOrDefault("timeouts.sweep_interval", cfg.Timeouts.SweepInterval, timeout.DefaultPulse); err == nil {
				if err := a.sweep.Apply(ctx, d); err != nil {
					a.log.Warn("failed to apply sweep interval", logx.Err(err))
				}
			}
			a.log.Info("config applied")
		}
	}
}

// validate rejects configs that would break running components; used at
// start-up and as the hot-reload gate.
func validate(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Discord.GuildID) == "" {
		return fmt.Errorf("discord.guild_id is required")
	}
	if strings.TrimSpace(cfg.Timeouts.File) == "" {
		return fmt.Errorf("timeouts.file is required")
	}
	if _, err := config.ParseDurationField("timeouts.sweep_interval", cfg.Timeouts.SweepInterval); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("highlight.cooldown", cfg.Highlight.Cooldown); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("moderation.min_account_age", cfg.Moderation.MinAccountAge); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
