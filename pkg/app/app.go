package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"BranchChat/middleware"
	"BranchChat/pkg/cache"
	"BranchChat/pkg/config"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/queue"
	"BranchChat/pkg/realtime"
	svc "BranchChat/pkg/services"
	"BranchChat/pkg/store"
	tokenstore "BranchChat/pkg/token"
	"BranchChat/routes"
)

// App holds the wired services shared by the API server and chatctl.
type App struct {
	Log *logger.Logger
	DB  *gorm.DB

	Hub       *realtime.Hub
	Revoked   *tokenstore.Store
	Trigger   *svc.SummaryTrigger
	Convs     *svc.ConversationService
	Branches  *svc.BranchService
	Summaries *svc.SummaryService
	Sweeper   *svc.RetentionSweeper
	Cache     svc.SummaryCache

	memCache    *cache.Cache
	tokenCache  *cache.Cache
	redisCache  *cache.RedisSummaries
	queueClient *queue.AsynqClient
	cancel      context.CancelFunc
}

// New connects storage and wires services from the loaded config package.
func New(log *logger.Logger) (*App, error) {
	db, err := store.Open(store.Options{Driver: config.DBDriver, DSN: config.DatabaseURL, Debug: !config.IsProduction && !config.IsStaging}, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := store.SeedRoles(db); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	return Wire(db, log)
}

// Wire builds the service graph over an already migrated db.
func Wire(db *gorm.DB, log *logger.Logger) (*App, error) {
	a := &App{Log: log, DB: db, Hub: realtime.NewHub(64)}
	a.memCache = cache.New(config.SummaryCacheMaxItems, time.Minute)
	// Revocations must outlive LRU pressure, so they get an unbounded cache.
	a.tokenCache = cache.New(0, time.Minute)
	a.Revoked = tokenstore.New(a.tokenCache)

	ttl := time.Duration(config.SummaryCacheTTLSeconds) * time.Second
	var summaries svc.SummaryCache = cache.NewSummaries(a.memCache, ttl)
	if config.RedisURL != "" {
		rc, err := cache.NewRedisSummaries(config.RedisURL, ttl, log)
		if err != nil {
			log.Warn("redis unavailable, using in-memory summary cache", "error", err)
		} else {
			a.redisCache = rc
			summaries = rc
		}
	}

	var summarizer svc.Summarizer = svc.LocalSummarizer{}
	if config.IsGeminiEnabled {
		summarizer = svc.NewGeminiSummarizer(config.GeminiAPIKey, config.GeminiModel, true, log)
	}

	a.Trigger = svc.NewSummaryTrigger(db, summarizer, summaries, a.Hub, log)
	var dispatcher svc.SummaryDispatcher = svc.NewInlineDispatcher(a.Trigger, log)
	if config.SummaryMode == "queue" {
		client, err := queue.NewAsynqClient(config.RedisURL)
		if err != nil {
			log.Warn("summary queue unavailable, summarizing inline", "error", err)
		} else {
			a.queueClient = client
			dispatcher = svc.NewQueueDispatcher(client, dispatcher, log)
		}
	}

	a.Cache = summaries
	a.Convs = svc.NewConversationService(db, dispatcher, summaries, a.Hub, log)
	a.Branches = svc.NewBranchService(db, dispatcher, a.Hub, log)
	a.Summaries = svc.NewSummaryService(db, a.Trigger, summaries, log)
	a.Sweeper = svc.NewRetentionSweeper(db, summaries, time.Duration(config.RetentionDays)*24*time.Hour, log)
	return a, nil
}

// Router builds the gin engine with every route mounted.
func (a *App) Router(r *gin.Engine) *gin.Engine {
	routes.RegisterRoutes(r, routes.Deps{
		DB:        a.DB,
		Log:       a.Log,
		Secret:    config.JWTSecret,
		Revoked:   a.Revoked,
		Hub:       a.Hub,
		Convs:     a.Convs,
		Branches:  a.Branches,
		Summaries: a.Summaries,
		Limiter:   middleware.NewRateLimiter(time.Duration(config.RateLimitWindowSeconds)*time.Second, config.RateLimitCapacity),
		Guard:     middleware.NewDuplicateGuard(time.Duration(config.DuplicateWindowSeconds) * time.Second),
	})
	return r
}

// Start launches background work: the periodic retention sweep. In queue
// mode the worker's scheduler owns the sweep instead.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if config.SummaryMode != "queue" || a.queueClient == nil {
		go a.Sweeper.Run(ctx, time.Duration(config.SweepIntervalMinutes)*time.Minute)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Hub.Close()
	if a.queueClient != nil {
		_ = a.queueClient.Close()
	}
	if a.redisCache != nil {
		_ = a.redisCache.Close()
	}
	a.memCache.Close()
	a.tokenCache.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.Log.Sync()
}
