// Command memstored runs the conversational memory store: REST + WebSocket
// API, hybrid retrieval, and the background consolidation loop, over
// Postgres and (optionally) Redis.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo/memstore/internal/cliconfig"
	"github.com/evalgo/memstore/internal/httpapi"
	"github.com/evalgo/memstore/internal/integrator"
	"github.com/evalgo/memstore/internal/ratelimit"
	"github.com/evalgo/memstore/internal/retrieval"
	"github.com/evalgo/memstore/internal/security"
	"github.com/evalgo/memstore/internal/store"
	"github.com/evalgo/memstore/internal/store/cache"
	storepg "github.com/evalgo/memstore/internal/store/postgres"
	storeredis "github.com/evalgo/memstore/internal/store/redis"
	"github.com/evalgo/memstore/internal/subscription"
)

const (
	exitConfigError = 1
	exitStoreError  = 2
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "memstored",
	Short: "multi-tenant conversational memory store for AI agents",
	Long: `memstored ingests sessions of dialog turns, consolidates them into
compressed memory records, indexes them for hybrid lexical + vector
retrieval, and serves recall queries with tenant-scoped authorization,
rate limiting, and real-time change subscriptions.`,
	Run: runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: memstore.yaml in /etc/memstore, then in the working directory)")
	rootCmd.PersistentFlags().String("port", "", "HTTP listen port")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection URL")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis connection URL")
	rootCmd.PersistentFlags().String("jwt-secret", "", "bearer token signing secret")

	viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis-url"))
	viper.BindPFlag("security.jwt_secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitConfigError)
	}
}

// staticTenantLister serves the integrator from the fixed tenant set the
// API-key registry was configured with.
type staticTenantLister struct {
	tenants []string
}

func (l staticTenantLister) ListTenants(context.Context) ([]string, error) {
	return l.tenants, nil
}

func runServer(cmd *cobra.Command, args []string) {
	log := logrus.WithField("component", "memstored")

	cfg, err := cliconfig.Load(viper.GetViper(), cfgFile)
	if err != nil {
		log.WithError(err).Error("configuration error")
		os.Exit(exitConfigError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storepg.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.WithError(err).Error("failed to connect to postgres")
		os.Exit(exitStoreError)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.WithError(err).Error("failed to run migrations")
		os.Exit(exitStoreError)
	}

	var redisRepo *storeredis.Repository
	if cfg.Redis.URL != "" {
		redisRepo, err = storeredis.New(ctx, cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Error("failed to connect to redis")
			os.Exit(exitStoreError)
		}
		defer redisRepo.Close()
	}

	var backing store.CacheRepository
	var locks store.LockRepository
	if redisRepo != nil {
		backing = redisRepo
		locks = redisRepo
	}
	cacheTier, err := cache.New(backing, 0)
	if err != nil {
		log.WithError(err).Error("failed to build cache tier")
		os.Exit(exitStoreError)
	}
	defer cacheTier.Close()

	repos := store.Repositories{
		Memories:     storepg.NewMemoryRepository(db),
		Patterns:     storepg.NewPatternRepository(db),
		Profiles:     storepg.NewProfileRepository(db),
		Entities:     storepg.NewEntityRepository(db),
		Sessions:     storepg.NewSessionRepository(db),
		Turns:        storepg.NewTurnRepository(db),
		IndexRecords: storepg.NewIndexRecordRepository(db),
		Locks:        locks,
		Cache:        cacheTier,
	}

	apiKeys := security.NewAPIKeyAuthenticator()
	tenantSet := make(map[string]struct{})
	for key, tenantID := range cfg.Security.APIKeys {
		apiKeys.Register(key, tenantID, "api-key:"+tenantID, security.RoleUser)
		tenantSet[tenantID] = struct{}{}
	}
	var bearer *security.BearerAuthenticator
	if cfg.Security.JWTSecret != "" {
		bearer = security.NewBearerAuthenticator(
			[]byte(cfg.Security.JWTSecret),
			cfg.Security.JWTIssuer,
			cfg.Security.JWTAudience,
			cfg.Security.JWTExpiry(),
		)
	}
	auth := security.NewCombinedAuthenticator(apiKeys, bearer)

	limitCfg := ratelimit.Config{
		PerMinute: cfg.Security.RateLimit.PerMinute,
		PerHour:   cfg.Security.RateLimit.PerHour,
		PerDay:    cfg.Security.RateLimit.PerDay,
		Burst:     cfg.Security.RateLimit.Burst,
		Enabled:   cfg.Security.RateLimit.Enabled,
	}
	var limiter *ratelimit.Limiter
	if redisRepo != nil {
		limiter = ratelimit.NewRedis(limitCfg, redisRepo.Client())
	} else {
		limiter = ratelimit.New(limitCfg)
	}

	engine := retrieval.NewEngine(storepg.NewCandidateSource(db), nil)
	registry := subscription.NewRegistry()
	dehydrator := integrator.NewDehydrationService(repos.Memories, repos.IndexRecords, repos.Turns, nil, nil)

	if locks != nil {
		tenants := make([]string, 0, len(tenantSet))
		for tenantID := range tenantSet {
			tenants = append(tenants, tenantID)
		}
		integ := integrator.New(integrator.Config{
			SummarizationInterval: cfg.Integration.SummarizationInterval,
			ImportanceInterval:    cfg.Integration.ImportanceInterval,
			RedundancyInterval:    cfg.Integration.RedundancyInterval,
			RelationshipInterval:  cfg.Integration.RelationshipInterval,
			BatchSize:             cfg.Integration.BatchSize,
			MinImportance:         cfg.Integration.MinImportance,
			SimilarityThreshold:   cfg.Integration.SimilarityThreshold,
			LockTTL:               10 * time.Minute,
		}, repos.Memories, locks, staticTenantLister{tenants: tenants})
		go integ.Run(ctx)
	} else {
		log.Warn("no redis configured, consolidation loop disabled")
	}

	server := httpapi.NewServer(
		httpapi.Config{
			AllowedOrigins: cfg.Security.CORSAllowedOrigins,
			MaxRequestSize: cfg.Security.MaxRequestSize,
		},
		repos, engine, dehydrator, registry, limiter, auth,
	)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.WithField("addr", addr).Info("server starting")
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}
