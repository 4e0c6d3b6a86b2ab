package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/paysync/docs"
	"github.com/fatflowers/paysync/internal/app/api/handlers"
	mw "github.com/fatflowers/paysync/internal/app/api/middleware"
	"github.com/fatflowers/paysync/internal/app/service/checkout"
	"github.com/fatflowers/paysync/internal/app/service/ledger"
	nh "github.com/fatflowers/paysync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/paysync/internal/app/service/notification_log"
	"github.com/fatflowers/paysync/internal/app/service/resync"
	"github.com/fatflowers/paysync/internal/app/service/statistics"
	subsvc "github.com/fatflowers/paysync/internal/app/service/subscription"
	cfgpkg "github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env != cfgpkg.EnvDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Engine        *gin.Engine
	Log           *zap.SugaredLogger
	Cfg           *cfgpkg.Config
	DB            *gorm.DB
	Notifications *nh.NotificationHandler
	Checkout      *checkout.Initiator
	Subscriptions *subsvc.Service
	Resync        *resync.Service
	Statistics    *statistics.Service
	Ledger        *ledger.Ledger
	Deliveries    *notificationlog.Service
}

func newPrometheus(lc fx.Lifecycle, cfg *cfgpkg.Config, log *zap.SugaredLogger, r *gin.Engine) *metrics.Prometheus {
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{Logger: log})
	if cfg.MetricsAddr != "" {
		p.SetListenAddress(cfg.MetricsAddr)
	}
	p.Use(r)

	if srv := p.Server(); srv != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				log.Infow("metrics started", "addr", cfg.MetricsAddr)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Errorw("metrics server error", "err", err)
					}
				}()
				return nil
			},
			OnStop: srv.Shutdown,
		})
	}
	return p
}

func registerRoutes(d routeDeps, _ *metrics.Prometheus) {
	opts := handlers.MountOptions{MaxBodyBytes: d.Cfg.Webhook.MaxBodyBytes, JWTSecret: d.Cfg.Auth.JWTSecret, Log: d.Log}
	if opts.JWTSecret == "" {
		d.Log.Warnw("auth.jwt_secret is empty; authenticated routes will reject every request")
	}

	// Public group: request logger + access log
	pub := d.Engine.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.Mount(pub, opts, handlers.HealthRoutes(d.DB)...)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	billing := d.Engine.Group("/billing")
	billing.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.Mount(billing, opts, handlers.BillingRoutes(d.Notifications, d.Checkout, d.Subscriptions, d.Log)...)

	admin := d.Engine.Group("/api/v1/admin")
	admin.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.Mount(admin, opts, handlers.AdminRoutes(handlers.AdminDeps{
		Subscriptions: d.Subscriptions,
		Resync:        d.Resync,
		Statistics:    d.Statistics,
		Ledger:        d.Ledger,
		Deliveries:    d.Deliveries,
	})...)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine, newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
