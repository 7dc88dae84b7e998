// Package http serves the verification page.
package http

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"moff.io/wallet-verify/internal/session"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/log"
	"moff.io/wallet-verify/pkg/log/middleware"
)

//go:embed templates/*.html
var templatesFS embed.FS

const pageTemplate = "verify.html"

// StepLimiter rate limits the verification steps of one client.
type StepLimiter interface {
	Allow(ctx context.Context, client string) (allowed bool, retryAfter time.Duration, err error)
}

type Options struct {
	Address        string
	AllowedOrigins []string
	// StepTimeout bounds one step, including the time the user needs to approve in the wallet.
	StepTimeout time.Duration
	// Limiter is optional.
	Limiter StepLimiter
}

type Server struct {
	opts   Options
	store  *session.Store
	deps   verify.Dependencies
	router *gin.Engine
}

func NewServer(store *session.Store, deps verify.Dependencies, opts Options) *Server {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 5 * time.Minute
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts:  opts,
		store: store,
		deps:  deps,
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog())
	if len(s.opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  s.opts.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length", "Content-Type", "Retry-After"},
			MaxAge:        1 * time.Hour,
		}))
	}
	router.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	router.GET("/healthz", s.healthz)

	page := router.Group("/verify", middleware.TimeoutHTTP())
	page.GET("", s.createView)
	page.GET("/:id", s.showView)
	page.GET("/:id/state", s.viewState)
	page.GET("/:id/qr.png", s.pairingQRCode)

	steps := router.Group("/verify/:id", middleware.TimeoutHTTP(s.opts.StepTimeout))
	if s.opts.Limiter != nil {
		steps.Use(rateLimit(s.opts.Limiter))
	}
	steps.POST("/connect", s.step(func(ctx context.Context, v *verify.View) { v.ConnectWallet(ctx) }))
	steps.POST("/sign", s.step(func(ctx context.Context, v *verify.View) { v.SignMessage(ctx) }))
	steps.POST("/submit", s.step(func(ctx context.Context, v *verify.View) { v.VerifyWallet(ctx) }))
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Verification page listening on %v", s.opts.Address)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("http server:%v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("http server shutdown:%v", err)
		}
		log.Info("Verification page stopped")
	}
}
