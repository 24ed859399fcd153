package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/accounting/balances"
	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/accounting/mappings"
	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/reconciliation"
	"github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
	"github.com/odyssey-erp/reconciler/internal/training"
)

const mappingModule = "reconciliation"

// Engine holds the reconciliation components shared by the API server and
// the worker.
type Engine struct {
	Catalog     *accounts.Catalog
	Accounts    *accounts.Service
	Journals    *journals.Service
	Balances    *balances.Service
	Patterns    *training.Store
	Feedback    *training.FeedbackLoop
	Training    training.Repository
	Claims      *banking.Claims
	Service     *reconciliation.Service
	Idempotency *shared.IdempotencyStore
}

// EngineDeps are the connections and hooks an Engine is built from. Redis
// may be nil; claims and pattern version broadcasts are then process-local.
type EngineDeps struct {
	Config   *Config
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Logger   *slog.Logger
	Observer reconciliation.Observer
}

// NewEngine wires repositories, strategies and services.
func NewEngine(ctx context.Context, d EngineDeps) (*Engine, error) {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eps := cfg.Epsilon()

	catalog := accounts.NewCatalog(accounts.NewRepository(d.Pool), cfg.Reconciliation.CatalogTTL)
	defaults := mappings.NewDefaults(mappings.NewRepository(d.Pool), mappingModule, cfg.AccountDefaults())
	items := targets.NewRepository(d.Pool)

	trainingRepo := training.NewRepository(d.Pool)
	store := training.NewStore(trainingRepo, training.NewVersions(d.Redis), logger)
	feedback := training.NewFeedbackLoop(trainingRepo, store, catalog, logger)

	strategies := []reconciliation.Strategy{
		reconciliation.NewExactValueStrategy(items, eps),
		reconciliation.NewDocumentExtractionStrategy(items, eps),
		reconciliation.NewPatternClassificationStrategy(),
	}
	if cfg.AI.Enabled {
		suggester, err := reconciliation.NewGeminiSuggester(ctx, reconciliation.GeminiConfig{
			APIKey: cfg.AI.APIKey,
			Model:  cfg.AI.Model,
		}, items, catalog)
		if err != nil {
			return nil, fmt.Errorf("init ai suggester: %w", err)
		}
		strategies = append(strategies, reconciliation.NewAISuggestionStrategy(suggester, cfg.AI.Timeout))
		logger.Info("ai suggestions enabled", slog.String("model", cfg.AI.Model))
	}

	claims := banking.NewClaims(d.Redis, cfg.Reconciliation.ClaimTTL).WithBatchTTL(cfg.Reconciliation.BatchLockTTL)
	idempotency := shared.NewIdempotencyStore(d.Pool)
	threshold := cfg.Reconciliation.AutoApproveThreshold

	service := reconciliation.NewService(reconciliation.Deps{
		Repo:         reconciliation.NewRepository(d.Pool),
		Transactions: banking.NewRepository(d.Pool),
		Generator:    reconciliation.NewGenerator(threshold, logger, d.Observer, strategies...),
		Splitter:     reconciliation.NewSplitAllocator(defaults, eps),
		Poster:       reconciliation.NewPoster(catalog, defaults, eps, logger),
		Catalog:      catalog,
		Patterns:     store,
		Questions:    feedback,
		Claims:       claims,
		Audit:        shared.NewAuditLogger(d.Pool),
		Idempotency:  idempotency,
		Observer:     d.Observer,
		Logger:       logger,
		Threshold:    threshold,
	})

	return &Engine{
		Catalog:     catalog,
		Accounts:    accounts.NewService(catalog),
		Journals:    journals.NewService(journals.NewRepository(d.Pool)),
		Balances:    balances.NewService(balances.NewRepository(d.Pool), eps),
		Patterns:    store,
		Feedback:    feedback,
		Training:    trainingRepo,
		Claims:      claims,
		Service:     service,
		Idempotency: idempotency,
	}, nil
}
