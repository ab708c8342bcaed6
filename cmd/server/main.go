package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"corpchat-backend/internal/auth"
	"corpchat-backend/internal/calendar"
	"corpchat-backend/internal/config"
	"corpchat-backend/internal/handler"
	"corpchat-backend/internal/i18n"
	"corpchat-backend/internal/logger"
	"corpchat-backend/internal/service"
	"corpchat-backend/internal/store"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	lg, err := logger.Init(logger.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	log := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := i18n.Init(cfg.DefaultLocale); err != nil {
		log.Fatalf("init i18n: %v", err)
	}

	days, err := calendar.NewDayKeyer(cfg.OrgTimezone, time.Now)
	if err != nil {
		log.Fatalf("org time zone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := map[string]handler.Pinger{}

	// Workday store
	var workdays service.WorkdayStore
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory workday store; data is lost on restart")
		workdays = store.NewMemoryWorkdayStore()
	default:
		db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDB, log)
		if err != nil {
			log.Fatalf("connect to mongodb: %v", err)
		}
		defer db.Close(context.Background())
		deps["mongodb"] = db

		workdays, err = store.NewMongoWorkdayStore(ctx, db)
		if err != nil {
			log.Fatalf("init workday store: %v", err)
		}
	}

	// User directory is optional; without it team queries need explicit ids.
	var team handler.TeamDirectory
	if cfg.PostgresURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.PostgresURL, log)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		defer pg.Close()
		deps["postgres"] = pg
		team = store.NewUserDirectory(pg)
	}

	workdaySvc := service.NewWorkdayService(workdays, days, log.Named("workday"))

	mux := http.NewServeMux()
	handler.NewWorkdayHandler(workdaySvc, team, log.Named("http")).
		RegisterRoutes(mux, auth.Middleware(cfg.JWTSecret), auth.RequireRoles("manager", "admin"))
	handler.RegisterHealth(mux, deps, log)

	var h http.Handler = mux
	h = handler.LocaleMiddleware(h)
	h = handler.CORSMiddleware(cfg.AllowedOrigins, cfg.Env != "production")(h)
	h = handler.LoggingMiddleware(log.Named("http"))(h)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("workday service started", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreBackend, "zone", cfg.OrgTimezone)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http server shutdown failed: %v", err)
	}
}
