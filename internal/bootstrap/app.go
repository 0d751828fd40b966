package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "docvault/internal/auth"
	"docvault/internal/convert"
	"docvault/internal/documents"
	"docvault/internal/extract"
	"docvault/internal/llm"
	"docvault/internal/llm/gemini"
	"docvault/internal/llm/openai"
	"docvault/internal/queue"
	"docvault/internal/services/health"
	"docvault/internal/shared/config"
	"docvault/internal/shared/server"
	"docvault/internal/shared/storage/cache"
	"docvault/internal/shared/storage/db"
	"docvault/internal/shared/storage/object"
	localstore "docvault/internal/shared/storage/object/local"
	s3store "docvault/internal/shared/storage/object/s3"
	"docvault/internal/users"
	"docvault/internal/workerproc"
)

const (
	localQueueBuffer = 256

	// ShutdownTimeout bounds how long binaries wait for in-flight enrichment.
	ShutdownTimeout = 30 * time.Second
)

// App holds the wired dependencies shared by every binary.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Store      object.BlobStore
	Cache      *cache.RedisCache
	LocalQueue *queue.LocalClient

	Documents        *documents.Service
	Users            *users.Service
	DocumentsHandler *documents.Handler
	UsersHandler     *users.Handler
	GoogleAuth       *googleauth.GoogleService

	closers []func() error
}

// Build wires storage, enrichment and HTTP handlers from cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = config.StoreLocal
	}

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB

	store, blobHandler, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	enricher, err := buildEnricher(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	var docRepo documents.Repo
	var userRepo users.Repo
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}

	docSvc := &documents.Service{
		Repo:          docRepo,
		Store:         store,
		Extractor:     buildExtractor(cfg),
		Enricher:      enricher,
		Bucket:        cfg.DocumentsBucket,
		SignedURLTTL:  cfg.SignedURLTTL,
		EnrichTimeout: cfg.EnrichTimeout,
		CacheTTL:      cfg.ListCacheTTL,
	}
	// A typed nil *RedisCache must not reach the ListCache interface.
	if redisCache := cache.NewRedis(ctx, cfg.RedisAddress); redisCache != nil {
		app.Cache = redisCache
		docSvc.Cache = redisCache
		app.closers = append(app.closers, redisCache.Close)
	}

	dispatcher, err := buildDispatcher(ctx, cfg, app, docSvc)
	if err != nil {
		return nil, err
	}
	if dispatcher != nil {
		docSvc.Dispatcher = dispatcher
	}

	userSvc := users.NewService(userRepo)

	app.Documents = docSvc
	app.Users = userSvc
	app.DocumentsHandler = documents.NewHandler(docSvc, cfg.MaxUploadBytes)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleauth.NewGoogleService(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.UIRedirectURL,
		userSvc,
	)

	checks := health.NewService()
	if app.DB != nil {
		checks.Register("database", db.Probe(app.DB, 0))
	}
	if app.Cache != nil {
		checks.Register("cache", app.Cache.Ping)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Health:      checks,
		Resolver:    userSvc,
		BlobHandler: blobHandler,
		Handlers: []server.RouteRegistrar{
			app.GoogleAuth,
			app.UsersHandler,
			app.DocumentsHandler,
		},
	})

	return app, nil
}

// Close drains the local queue and releases connections.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.LocalQueue != nil {
		if err := a.LocalQueue.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("local queue shutdown: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.BlobStore, gin.HandlerFunc, error) {
	switch cfg.ObjectStoreType {
	case config.StoreS3:
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		if !isDevLike(cfg.Env) && cfg.BlobSigningSecret == "dev-blob-secret" {
			log.Printf("bootstrap: BLOB_SIGNING_SECRET is the development default")
		}
		store := localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL, []byte(cfg.BlobSigningSecret))
		return store, store.Handler(), nil
	}
}

func buildExtractor(cfg config.Config) *extract.Extractor {
	if strings.TrimSpace(cfg.CloudConvertAPIKey) == "" {
		return extract.New(nil)
	}
	conv, err := convert.NewClient(cfg.CloudConvertAPIKey)
	if err != nil {
		log.Printf("bootstrap: cloudconvert disabled: %v", err)
		return extract.New(nil)
	}
	return extract.New(conv)
}

func buildEnricher(ctx context.Context, cfg config.Config, app *App) (llm.Enricher, error) {
	var completer llm.Completer
	switch cfg.LLMProvider {
	case config.ProviderNone:
		log.Printf("bootstrap: LLM_PROVIDER=none; enrichment will record failures")
		return llm.PlaceholderClient{}, nil
	case config.ProviderOpenAI:
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		completer = client
	default:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
		if err != nil {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: gemini unavailable, enrichment disabled: %v", err)
				return llm.PlaceholderClient{}, nil
			}
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		completer = client
	}
	return llm.WithRetry(llm.NewEnricher(completer)), nil
}

func buildDispatcher(ctx context.Context, cfg config.Config, app *App, docs *documents.Service) (documents.Dispatcher, error) {
	switch cfg.EnrichMode {
	case config.EnrichModeInline:
		return nil, nil
	case config.EnrichModeSQS:
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		return queue.NewDispatcher(client), nil
	default:
		local := queue.NewLocalClient(cfg.WorkerConcurrency, localQueueBuffer, func(ctx context.Context, msg queue.Message) error {
			return workerproc.Process(ctx, docs, msg)
		})
		app.LocalQueue = local
		return queue.NewDispatcher(local), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
