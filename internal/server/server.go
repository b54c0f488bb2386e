package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/restorehq/restore/internal/config"
	datasetdomain "github.com/restorehq/restore/internal/dataset/domain"
	ingestdomain "github.com/restorehq/restore/internal/ingest/domain"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	"github.com/restorehq/restore/internal/observability"
	obsmiddleware "github.com/restorehq/restore/internal/observability/logger"
	obsmetrics "github.com/restorehq/restore/internal/observability/metrics"
	obstracing "github.com/restorehq/restore/internal/observability/tracing"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	ingestSvc     ingestdomain.Service
	datasetSvc    datasetdomain.Service
	ledgerSvc     ledgerdomain.Service
	paymentSvc    paymentdomain.Service
	uploadLimiter *ratelimit.UploadLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	IngestSvc     ingestdomain.Service
	DatasetSvc    datasetdomain.Service
	LedgerSvc     ledgerdomain.Service
	PaymentSvc    paymentdomain.Service
	UploadLimiter *ratelimit.UploadLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		ingestSvc:     p.IngestSvc,
		datasetSvc:    p.DatasetSvc,
		ledgerSvc:     p.LedgerSvc,
		paymentSvc:    p.PaymentSvc,
		uploadLimiter: p.UploadLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerUploadRoutes()
	svc.registerDatasetRoutes()
	svc.registerPaymentRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerUploadRoutes() {
	limit := LimitBody(s.cfg.Ingest.MaxUploadBytes)
	s.engine.POST("/upload/demand", limit, s.UploadRateLimit(), s.UploadDemand)
	s.engine.POST("/upload/sales", limit, s.UploadRateLimit(), s.UploadSales)
}

func (s *Server) registerDatasetRoutes() {
	s.engine.GET("/demand/:customerId", s.GetDemand)
	s.engine.GET("/sales/:customerId", s.GetSales)
	s.engine.GET("/insights/:customerId", s.GetInsights)
	s.engine.GET("/prediction/:customerId", s.GetPrediction)
	s.engine.GET("/sales-prediction/:customerId", s.GetSalesPrediction)
}

func (s *Server) registerPaymentRoutes() {
	s.engine.POST("/buy-credits", s.BuyCredits)
	s.engine.POST("/paymongo-webhook", LimitBody(maxWebhookBytes), s.HandlePayMongoWebhook)
	s.engine.GET("/customer-credits", s.GetCustomerCredits)

	s.engine.GET("/receipts", s.ListReceipts)
	s.engine.GET("/receipts/:id/pdf", s.GetReceiptPDF)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
