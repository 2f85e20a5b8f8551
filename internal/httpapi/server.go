package httpapi

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"tgbroadcast/internal/broadcast"
	logx "tgbroadcast/pkg/logx"
)

// Runner performs one broadcast; *broadcast.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, req broadcast.Request) (broadcast.Report, error)
}

type Options struct {
	Runner Runner
	Log    logx.Logger
	// Branding returns the identity for response meta; read per request so
	// config reloads apply immediately.
	Branding func() broadcast.Branding
	// Health adds fields to the /healthz payload.
	Health      func() map[string]any
	CORSOrigins []string
	// Mode is the gin mode (release, debug, test).
	Mode string
	Now  func() time.Time
}

type handler struct {
	runner   Runner
	log      logx.Logger
	branding func() broadcast.Branding
	health   func() map[string]any
	validate *validator.Validate
	now      func() time.Time
}

// NewRouter builds the gin engine serving the broadcast API.
func NewRouter(opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	h := &handler{
		runner:   opts.Runner,
		log:      opts.Log,
		branding: opts.Branding,
		health:   opts.Health,
		validate: validator.New(),
		now:      opts.Now,
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	if h.branding == nil {
		h.branding = broadcast.DefaultBranding
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		h.requestLog(),
		gin.CustomRecoveryWithWriter(io.Discard, h.recovered),
		cors.New(corsConfig(opts.CORSOrigins)),
		noCache(),
	)

	for _, prefix := range []string{"", "/api"} {
		r.GET(prefix+"/broadcast", h.broadcast)
		r.POST(prefix+"/broadcast", h.broadcast)
	}
	r.GET("/", h.info)
	r.GET("/api", h.info)
	r.GET("/healthz", h.healthz)

	r.NoRoute(func(c *gin.Context) {
		h.fail(c, http.StatusNotFound, "Endpoint not found", "")
	})
	r.NoMethod(func(c *gin.Context) {
		h.fail(c, http.StatusMethodNotAllowed, "Method not allowed", "")
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func noCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Next()
	}
}

// requestLog logs the path without the query string: GET requests carry the
// bot token there.
func (h *handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", status),
			logx.Duration("latency", time.Since(start)),
			logx.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			h.log.Warn("http request", fields...)
		case strings.HasSuffix(c.Request.URL.Path, "/broadcast"):
			h.log.Info("http request", fields...)
		default:
			h.log.Debug("http request", fields...)
		}
	}
}

func (h *handler) recovered(c *gin.Context, rec any) {
	h.log.Error("panic in http handler",
		logx.String("path", c.Request.URL.Path),
		logx.Any("panic", rec),
		logx.Stack(string(debug.Stack())),
	)
	h.fail(c, http.StatusInternalServerError, "Internal server error", "")
}

func (h *handler) reply(c *gin.Context, code int, env Envelope) {
	env.Meta = newMeta(h.branding(), h.now())
	c.JSON(code, env)
}

func (h *handler) fail(c *gin.Context, code int, msg, details string) {
	env := Envelope{Status: statusError, Message: msg, ErrorDetails: details}
	env.Meta = newMeta(h.branding(), h.now())
	c.AbortWithStatusJSON(code, env)
}
