// Package main is the entry point for the NewAPI admin side-car.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/auth"
	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/config"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/geoip"
	"github.com/newapi-sidecar/sidecar/internal/handler"
	"github.com/newapi-sidecar/sidecar/internal/ipsetting"
	"github.com/newapi-sidecar/sidecar/internal/modelstatus"
	"github.com/newapi-sidecar/sidecar/internal/query"
	"github.com/newapi-sidecar/sidecar/internal/risk"
	"github.com/newapi-sidecar/sidecar/internal/router"
	"github.com/newapi-sidecar/sidecar/internal/server"
	"github.com/newapi-sidecar/sidecar/internal/task"
	"github.com/newapi-sidecar/sidecar/internal/warmup"
)

const (
	stateLastLogID       = "last_log_id"
	stateLastProcessedAt = "last_processed_at"
	stateTotalProcessed  = "total_processed"

	logSyncBatchSize  = 1000
	logSyncMaxBatches = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := setupLogger(cfg)

	logger.Info().
		Str("env", cfg.Server.Env).
		Str("port", cfg.Server.Port).
		Msg("Starting NewAPI admin side-car")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := dbx.New(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to gateway database")
	}
	defer db.Close()

	local, err := dbx.OpenLocal(cfg.Local.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer local.Close()

	cache := cachex.New(cfg.Redis, local, logger)

	geo := geoip.New(cfg.GeoIP, logger)
	if err := geo.Reload(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial GeoIP database load failed, will retry on schedule")
	}
	defer geo.Close()

	engine, err := query.New(ctx, db, cache, geo, cfg.Timezone, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build query engine")
	}

	modelStatusEngine := modelstatus.New(db, cache)
	scaleDetector := warmup.NewScaleDetector(db)
	orchestrator := warmup.New(db, cache, engine, modelStatusEngine, scaleDetector, logger)

	whitelist := risk.NewWhitelist(local)
	auditLogger := risk.NewAuditLogger(local)
	aiClient := risk.NewClient(cfg.AIBan.BaseURL, cfg.AIBan.APIKey, cfg.AIBan.Model, "", cfg.AIBan.CooldownWindow, cfg.AIBan.FailureLimit, logger)
	pipeline := risk.NewPipeline(db, engine, whitelist, auditLogger, aiClient, logger, cfg.AIBan.Enabled, cfg.AIBan.DryRun)

	authSvc, err := auth.New(cfg.Auth.AdminPassword, cfg.Auth.JWTSecret, cfg.Auth.JWTExpireHours)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build auth service")
	}

	tasks := task.New(ctx, logger)
	registerTasks(tasks, cfg, db, local, geo, modelStatusEngine, orchestrator, pipeline)

	go func() {
		<-orchestrator.DoneCh()
		tasks.SignalWarmupDone()
	}()

	healthHandler := handler.NewHealthHandler(db)
	authHandler := handler.NewAuthHandler(authSvc, cfg.Auth.JWTExpireHours)
	dashboardHandler := handler.NewDashboardHandler(engine, cache)
	riskHandler := handler.NewRiskHandler(engine, auditLogger)
	ipHandler := handler.NewIPHandler(engine, geo, db)
	modelStatusHandler := handler.NewModelStatusHandler(modelStatusEngine, local)
	aiBanHandler := handler.NewAIBanHandler(pipeline, whitelist, auditLogger, db, local)
	systemHandler := handler.NewSystemHandler(scaleDetector, orchestrator, db, tasks)
	adminHandler := handler.NewAdminHandler(db)

	r := router.New(router.Dependencies{
		Config:      cfg,
		Logger:      logger,
		AuthService: authSvc,
		Health:      healthHandler,
		AuthHandler: authHandler,
		Dashboard:   dashboardHandler,
		Risk:        riskHandler,
		IP:          ipHandler,
		ModelStatus: modelStatusHandler,
		AIBan:       aiBanHandler,
		System:      systemHandler,
		Admin:       adminHandler,
	})

	srv := server.New(cfg, r, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server error")
	}

	cancel()
	tasks.Shutdown()

	logger.Info().Msg("Side-car shutdown complete")
}

// registerTasks wires up the nine background jobs the side-car runs
// alongside the HTTP server (spec.md §4.7). Cache refresh, log sync, the
// AI-ban scan, and the model-status refresh all wait for warmup to finish
// so they never race the orchestrator's own first pass.
func registerTasks(tasks *task.Manager, cfg *config.Config, db *dbx.Manager, local *dbx.Local, geo *geoip.Service, models *modelstatus.Engine, orchestrator *warmup.Orchestrator, pipeline *risk.Pipeline) {
	tasks.Register("cache_warmup", cfg.Tasks.CacheWarmupInterval, func(ctx context.Context) error {
		orchestrator.Run(ctx)
		return nil
	})

	tasks.Register("index_ensure", cfg.Tasks.IndexEnsureInterval, func(ctx context.Context) error {
		return db.EnsureIndexes(ctx, true, cfg.Tasks.IndexPacing)
	})

	tasks.Register("ip_recording_enforce", cfg.Tasks.IPRecordingInterval, func(ctx context.Context) error {
		_, err := ipsetting.EnforceAll(ctx, db)
		return err
	})

	tasks.Register("geoip_update", cfg.Tasks.GeoIPUpdateInterval, func(ctx context.Context) error {
		return geo.Reload(ctx)
	})

	tasks.Register("cache_cleanup", cfg.Tasks.CacheCleanupInterval, func(ctx context.Context) error {
		return local.PruneExpired(ctx)
	})

	tasks.StartAfterWarmup("cache_refresh", cfg.Tasks.CacheRefreshInterval, func(ctx context.Context) error {
		return orchestrator.RefreshHotSet(ctx)
	})

	tasks.StartAfterWarmup("log_sync", cfg.Tasks.LogSyncInterval, func(ctx context.Context) error {
		last, _, err := local.GetState(ctx, stateLastLogID)
		if err != nil {
			return err
		}
		total, _, err := local.GetState(ctx, stateTotalProcessed)
		if err != nil {
			return err
		}

		for batch := 0; batch < logSyncMaxBatches; batch++ {
			row, err := db.QueryOne(ctx, `
				SELECT MAX(id) AS max_id, COUNT(*) AS cnt FROM (
					SELECT id FROM logs WHERE id > ? ORDER BY id LIMIT ?
				) AS batch`, last, logSyncBatchSize)
			if err != nil {
				return err
			}
			if row == nil {
				break
			}
			cnt := row["cnt"].Int64()
			if cnt == 0 {
				break
			}
			last = row["max_id"].Int64()
			total += cnt
			if err := local.SetState(ctx, stateLastLogID, last); err != nil {
				return err
			}
			if err := local.SetState(ctx, stateTotalProcessed, total); err != nil {
				return err
			}
			if cnt < logSyncBatchSize {
				break
			}
		}

		return local.SetState(ctx, stateLastProcessedAt, time.Now().Unix())
	})

	tasks.StartAfterWarmup("ai_ban_scan", cfg.AIBan.ScanInterval, func(ctx context.Context) error {
		if !cfg.AIBan.Enabled {
			return nil
		}
		candidates, err := risk.CandidateUserIDs(ctx, db, int64(cfg.AIBan.ScanInterval.Seconds()), 500)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		_, err = pipeline.Scan(ctx, candidates, int64(cfg.AIBan.ScanInterval.Seconds()))
		return err
	})

	tasks.StartAfterWarmup("model_status_refresh", cfg.Tasks.ModelStatusInterval, func(ctx context.Context) error {
		_, err := models.RefreshAvailableModels(ctx)
		return err
	})
}

// setupLogger configures zerolog based on environment, matching the
// console-in-dev / JSON-in-prod split the rest of the gateway uses.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Logging.Format == "console" || cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger
}
