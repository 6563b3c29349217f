package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/chatlink/internal/channel"
	channeldomain "github.com/smallbiznis/chatlink/internal/channel/domain"
	"github.com/smallbiznis/chatlink/internal/config"
	"github.com/smallbiznis/chatlink/internal/link"
	linkdomain "github.com/smallbiznis/chatlink/internal/link/domain"
	"github.com/smallbiznis/chatlink/internal/metrics"
	"github.com/smallbiznis/chatlink/internal/quota"
	quotadomain "github.com/smallbiznis/chatlink/internal/quota/domain"
	"github.com/smallbiznis/chatlink/internal/ratelimit"
	"github.com/smallbiznis/chatlink/internal/subscription"
	"github.com/smallbiznis/chatlink/internal/tier"
	"github.com/smallbiznis/chatlink/internal/usage"
	usagedomain "github.com/smallbiznis/chatlink/internal/usage/domain"
	"github.com/smallbiznis/chatlink/internal/verification"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	"github.com/smallbiznis/chatlink/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	metrics.Module,
	channel.Module,
	verification.Module,
	link.Module,
	usage.Module,
	subscription.Module,
	tier.Module,
	quota.Module,
	webhook.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(metrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ServerParam struct {
	fx.In

	Engine          *gin.Engine
	Config          config.Config
	Log             *zap.Logger
	VerificationSvc verificationdomain.Service
	LinkSvc         linkdomain.Service
	UsageSvc        usagedomain.Service
	QuotaSvc        quotadomain.Service
	ChannelRepo     channeldomain.Repository
	Limiter         *ratelimit.NonceIssueLimiter `optional:"true"`
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	verificationsvc verificationdomain.Service
	linksvc         linkdomain.Service
	usagesvc        usagedomain.Service
	quotasvc        quotadomain.Service
	channelrepo     channeldomain.Repository
	limiter         *ratelimit.NonceIssueLimiter
}

func NewServer(p ServerParam) *Server {
	return &Server{
		engine:          p.Engine,
		cfg:             p.Config,
		log:             p.Log.Named("server"),
		verificationsvc: p.VerificationSvc,
		linksvc:         p.LinkSvc,
		usagesvc:        p.UsageSvc,
		quotasvc:        p.QuotaSvc,
		channelrepo:     p.ChannelRepo,
		limiter:         p.Limiter,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	s.engine.POST("/link/generate", s.GenerateLink)
	s.engine.POST("/link/validate", s.ValidateLink)
	s.engine.POST("/link/finalize", s.FinalizeLink)
	s.engine.GET("/links", s.ListLinks)
	s.engine.GET("/channels", s.ListChannels)
	s.engine.POST("/usage/increment", s.IncrementUsage)
	s.engine.GET("/usage/limits", s.GetUsageLimits)
	s.engine.GET("/usage/summary", s.GetUsageSummary)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
