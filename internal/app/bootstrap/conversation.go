package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/llm"
	"github.com/wolfman30/creditsales-ai-platform/internal/lock"
	"github.com/wolfman30/creditsales-ai-platform/internal/messaging/templates"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const keyPrefix = "creditsales:"

// Dependencies are the shared clients the conversation pipeline runs on.
// Redis, SessionDB, LLM, Eligibility and Archiver may be nil.
type Dependencies struct {
	Config      *appconfig.Config
	Logger      *logging.Logger
	Redis       *redis.Client
	SessionDB   *sql.DB
	LLM         llm.Client
	Eligibility conversation.EligibilityChecker
	Messenger   conversation.Messenger
	Emitter     events.Emitter
	Archiver    conversation.SessionArchiver

	ConversationMetrics *metrics.ConversationMetrics
	MessagingMetrics    *metrics.MessagingMetrics
}

// Conversation is the assembled turn pipeline plus the stores the admin API reads.
type Conversation struct {
	Service  *conversation.Service
	Recovery *conversation.RecoverySweeper
	Sessions conversation.SessionStore
	Parking  conversation.ParkingLot
	Locks    *lock.Manager
	Catalog  catalog.Store
	// Thresholds are the engine settings after defaults were applied.
	Thresholds conversation.EngineConfig
}

// BuildConversation wires engine, loop, executor and service from deps.
func BuildConversation(ctx context.Context, deps Dependencies) (*Conversation, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Messenger == nil {
		return nil, fmt.Errorf("bootstrap: messenger is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	sessions, err := buildSessionStore(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	var parking conversation.ParkingLot
	if deps.Redis != nil {
		parking = conversation.NewRedisParkingLot(deps.Redis, keyPrefix)
	} else {
		parking = conversation.NewMemoryParkingLot()
	}

	lockOpts := []lock.Option{
		lock.WithDefaultTimeout(cfg.LockTimeout),
		lock.WithStaleAfter(cfg.LockStaleAfter),
		lock.WithMetrics(deps.ConversationMetrics),
	}
	if deps.Redis != nil {
		lockOpts = append(lockOpts, lock.WithDistributedLocker(lock.NewRedisLocker(deps.Redis, keyPrefix)))
	}
	locks := lock.NewManager(logger, lockOpts...)

	var store catalog.Store
	if deps.Redis != nil {
		store = catalog.NewRedisStore(deps.Redis, catalog.DefaultProducts())
	} else {
		store = catalog.NewMemoryStore(catalog.DefaultProducts())
	}

	var advisor *conversation.Advisor
	if deps.LLM != nil {
		categories, err := catalog.NewMemoryStore(catalog.DefaultProducts()).Categories(ctx, "")
		if err != nil {
			return nil, err
		}
		advisor = conversation.NewAdvisor(deps.LLM, "", categories)
	}

	engine := conversation.NewEngine(conversation.EngineConfig{
		MinCredit:       cfg.MinCredit,
		MinAge:          cfg.MinAge,
		MaxObjections:   cfg.MaxObjections,
		AgeGatedSegment: cfg.GASOSegmentName,
	})
	thresholds := engine.Config()
	logger.Info("conversation engine configured",
		"min_credit", thresholds.MinCredit,
		"min_age", thresholds.MinAge,
		"max_objections", thresholds.MaxObjections,
		"age_gated_segment", thresholds.AgeGatedSegment,
		"products_per_page", thresholds.ProductsPerPage,
	)
	loop := conversation.NewLoop(engine,
		conversation.NewHandlerSet(deps.Eligibility, store, advisor),
		sessions, deps.Emitter, logger,
		conversation.WithLoopMetrics(deps.ConversationMetrics),
	)
	executor := conversation.NewCommandExecutor(deps.Messenger, templates.DefaultCatalog(), deps.Emitter, logger,
		conversation.WithExecutorMetrics(deps.MessagingMetrics),
	)
	serviceOpts := []conversation.ServiceOption{
		conversation.WithParkingLot(parking),
		conversation.WithServiceEmitter(deps.Emitter),
		conversation.WithServiceMetrics(deps.ConversationMetrics),
		conversation.WithServiceConfig(conversation.ServiceConfig{
			SessionTTL:       cfg.SessionTTL,
			BacklogThreshold: cfg.BacklogThreshold,
			LockTimeout:      cfg.LockTimeout,
		}),
	}
	if deps.Archiver != nil {
		serviceOpts = append(serviceOpts, conversation.WithSessionArchiver(deps.Archiver))
	}
	service := conversation.NewService(loop, executor, sessions, locks, logger, serviceOpts...)

	out := &Conversation{
		Service:    service,
		Sessions:   sessions,
		Parking:    parking,
		Locks:      locks,
		Catalog:    store,
		Thresholds: thresholds,
	}
	if deps.Eligibility != nil {
		out.Recovery = conversation.NewRecoverySweeper(service, deps.Eligibility)
	}
	return out, nil
}

func buildSessionStore(cfg *appconfig.Config, deps Dependencies, logger *logging.Logger) (conversation.SessionStore, error) {
	switch cfg.SessionBackend {
	case "postgres":
		if deps.SessionDB == nil {
			return nil, fmt.Errorf("bootstrap: postgres session backend requires a database")
		}
		logger.Info("using postgres session store")
		return conversation.NewPostgresSessionStore(deps.SessionDB), nil
	case "redis", "":
		if deps.Redis != nil {
			logger.Info("using redis session store")
			return conversation.NewRedisSessionStore(deps.Redis, keyPrefix), nil
		}
		logger.Warn("redis unavailable; sessions are kept in memory")
		return conversation.NewMemorySessionStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}
