// cmd/web/main.go
//
// Reviews site – HTTP entry point.
//
// Start-up
// --------
//
//  1. Load layered configuration (.env, conf/global.yaml, REVIEWS_ env,
//     Vault references).
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Open the database and run migrations: acl role tables first, then
//     every component's schema.
//
//  4. Build the shared services: sessions, i18n catalog, form parser with
//     CAPTCHA and markdown, CSRF tokens, and the view renderer.
//
//  5. Assemble the chi router.  Middleware order matters:
//
//     RequestID → RealIP → Recoverer → Security → ForceHTTPS →
//     requestinfo → AccessLog → session → i18n → auth → CSRF
//
//  6. Mount the components and /metrics, then serve until SIGINT/SIGTERM
//     and drain in-flight requests.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/reviews/components/account"
	"github.com/yanizio/reviews/components/reviews"
	"github.com/yanizio/reviews/internal/acl"
	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/component"
	"github.com/yanizio/reviews/internal/config"
	"github.com/yanizio/reviews/internal/database"
	"github.com/yanizio/reviews/internal/form"
	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/middleware"
	"github.com/yanizio/reviews/internal/requestinfo"
	"github.com/yanizio/reviews/internal/review"
	"github.com/yanizio/reviews/internal/server"
	"github.com/yanizio/reviews/internal/session"
	"github.com/yanizio/reviews/internal/user"
	"github.com/yanizio/reviews/internal/view"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, runningInTTY(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer logOut.Sync() //nolint:errcheck

	//
	// ── 1.  Database ────────────────────────────────────────────────────
	//
	db, err := database.OpenWithOptions(cfg.Database.DSN, cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	if err != nil {
		logOut.Fatalw("connect database", "err", err)
	}
	defer db.Close()
	logOut.Infow("database online")

	//
	// ── 2.  Shared services ─────────────────────────────────────────────
	//
	catalog, err := i18n.New(cfg.Site.Languages)
	if err != nil {
		logOut.Fatalw("load catalogs", "err", err)
	}
	defs, err := form.DefaultDefinitions()
	if err != nil {
		logOut.Fatalw("load form definitions", "err", err)
	}

	challenges := make([]form.Challenge, 0, len(cfg.Captcha.Challenges))
	for _, ch := range cfg.Captcha.Challenges {
		challenges = append(challenges, form.Challenge{Question: ch.Question, Answer: ch.Answer})
	}
	parser := form.NewParser(form.NewCaptcha(cfg.Captcha.Forms, challenges), form.NewMarkdownRenderer())
	csrf := form.NewCSRF([]byte(cfg.CSRF.Secret))
	sessions := session.NewManager([]byte(cfg.Session.Secret), cfg.Session.CookieName, cfg.Session.MaxAge)

	renderer, err := view.New(view.Options{Catalog: catalog, CSRF: csrf, Dev: cfg.Site.Dev})
	if err != nil {
		logOut.Fatalw("parse templates", "err", err)
	}

	enricher, err := requestinfo.NewEnricher(cfg.GeoIP.Path)
	if err != nil {
		logOut.Fatalw("open geoip database", "err", err)
	}
	defer enricher.Close()

	users := user.NewStore(db, cfg.Site.SuperUsers)
	guard := &acl.Guard{DB: db, Responder: renderer, TitleKey: "permission error"}

	//
	// ── 3.  Components and migrations ───────────────────────────────────
	//
	registry := component.NewRegistry()
	for _, c := range []component.Component{
		account.New(users, parser, defs, renderer),
		reviews.New(review.NewStore(db), parser, defs, renderer, guard, catalog, reviews.Options{
			RequireTrusted: cfg.Reviews.RequireTrusted,
			RecentLimit:    cfg.Reviews.RecentLimit,
		}),
	} {
		if err := registry.Register(c); err != nil {
			logOut.Fatalw("register component", "err", err)
		}
	}
	if err := registry.Migrate(ctx, db, acl.Migrations); err != nil {
		logOut.Fatalw("migrate", "err", err)
	}
	logOut.Infow("components ready", "components", registry.Names())

	//
	// ── 4.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Security,
		middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS),
		enricher.Middleware,
		middleware.AccessLog(logOut),
	)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(site chi.Router) {
		site.Use(
			sessions.Middleware,
			catalog.Middleware,
			auth.Middleware(users),
			csrf.Protect(func(w http.ResponseWriter, r *http.Request) {
				renderer.PermissionError(w, r, "permission error", "invalid csrf token")
			}),
		)
		registry.Mount(site)
		site.NotFound(func(w http.ResponseWriter, r *http.Request) {
			renderer.NotFound(w, r, "page not found", "")
		})
	})

	//
	// ── 5.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, r, server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})
	if err := server.Run(ctx, srv, logOut); err != nil {
		logOut.Errorw("http server", "err", err)
	}
}
