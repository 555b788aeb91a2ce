package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fernlabs/tally/docs"
	"github.com/fernlabs/tally/internal/app/api/handlers"
	"github.com/fernlabs/tally/internal/app/service/account"
	"github.com/fernlabs/tally/internal/app/service/analytics"
	"github.com/fernlabs/tally/internal/app/service/billingsetup"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	"github.com/fernlabs/tally/internal/app/service/transaction"
	"github.com/fernlabs/tally/internal/app/service/webhook"
	cfgpkg "github.com/fernlabs/tally/pkg/config"

	mw "github.com/fernlabs/tally/internal/app/api/middleware"

	metrics "github.com/fernlabs/tally/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	accounts *account.Service,
	recorder transaction.Recorder,
	invoices invoice.Aggregator,
	analyticsSvc *analytics.Service,
	setupSvc *billingsetup.Service,
	webhookHandler *webhook.Handler,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Unauthenticated API surface: tracking events and the provider webhook
	apiV1Pub := r.Group("/api/v1")
	apiV1Pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterEventRoutes(apiV1Pub, analyticsSvc)
	handlers.RegisterWebhookRoutes(apiV1Pub, webhookHandler)

	// Authenticated user APIs
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AuthMiddleware(cfg.Auth.JWTSecret))
	apiV1.GET("/analytics", handlers.ApiGetAnalytics(analyticsSvc, accounts))
	handlers.RegisterInvoiceRoutes(apiV1, invoices, accounts)
	handlers.RegisterTransactionRoutes(apiV1, recorder, accounts)
	handlers.RegisterBillingSetupRoutes(apiV1, setupSvc)

	// Admin APIs
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), recorder, invoices)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
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
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
