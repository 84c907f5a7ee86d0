// Package httpapi wires the gin HTTP front-end: the single ingest
// route, CORS handling, and the /metrics and /watchdog operational
// endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sdkgateway/ingress/internal/admission"
	"github.com/sdkgateway/ingress/internal/config"
	"github.com/sdkgateway/ingress/internal/enrich"
	"github.com/sdkgateway/ingress/internal/gatewayerr"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/identitystore"
	"github.com/sdkgateway/ingress/internal/logging"
	"github.com/sdkgateway/ingress/internal/metrics"
	"github.com/sdkgateway/ingress/internal/model"
	"github.com/sdkgateway/ingress/internal/publish"
	"github.com/sdkgateway/ingress/internal/registry"
	"github.com/sdkgateway/ingress/internal/reqcontext"
	"github.com/sdkgateway/ingress/internal/resolver"
	"github.com/sdkgateway/ingress/internal/sdkproto"
	"github.com/sdkgateway/ingress/internal/workerpool"
)

// Server bundles every pipeline stage the ingest handler calls.
type Server struct {
	registry  *registry.Registry
	sealer    *gwcrypto.Sealer
	admission *admission.Controller
	resolver  *resolver.Resolver
	enricher  *enrich.Enricher
	publisher *publish.Publisher
	pool      *workerpool.Pool

	registerEvent  string
	lastRefresh    func() time.Time
	log            *zap.Logger
	cors           config.CORSConfig
}

// Deps bundles Server's constructor arguments.
type Deps struct {
	Registry      *registry.Registry
	Sealer        *gwcrypto.Sealer
	Admission     *admission.Controller
	Resolver      *resolver.Resolver
	Enricher      *enrich.Enricher
	Publisher     *publish.Publisher
	Pool          *workerpool.Pool
	RegisterEvent string
	LastRefresh   func() time.Time
	Log           *zap.Logger
	CORS          config.CORSConfig
}

// New builds a Server from its dependencies. A nil Pool falls back to
// a single-worker pool so tests that don't care about bounding still
// get correct request/response behavior.
func New(d Deps) *Server {
	pool := d.Pool
	if pool == nil {
		pool = workerpool.New(1)
	}
	return &Server{
		registry:      d.Registry,
		sealer:        d.Sealer,
		admission:     d.Admission,
		resolver:      d.Resolver,
		enricher:      d.Enricher,
		publisher:     d.Publisher,
		pool:          pool,
		registerEvent: d.RegisterEvent,
		lastRefresh:   d.LastRefresh,
		log:           d.Log,
		cors:          d.CORS,
	}
}

// Router builds the gin.Engine serving ingestPath, /metrics and
// /watchdog.
func (s *Server) Router(ingestPath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())

	r.POST(ingestPath, s.handleIngest)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/watchdog", s.handleWatchdog)

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "not found")
	})

	return r
}

// corsMiddleware short-circuits the OPTIONS preflight with the
// wildcard response. It does not set Access-Control-Allow-Origin on
// any other response: an admitted Web-platform request gets its own
// Origin echoed back by handleIngest instead, once admission has
// confirmed that origin is allow-listed for the app.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	methods := joinOrDefault(s.cors.AllowedMethods, "POST, OPTIONS")
	headers := joinOrDefault(s.cors.AllowedHeaders, "Content-Type, X-Api-Token, X-Signature, X-Device-Id, X-Real-IP")
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Methods", methods)
			c.Writer.Header().Set("Access-Control-Allow-Headers", headers)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func joinOrDefault(values []string, def string) string {
	if len(values) == 0 {
		return def
	}
	out := values[0]
	for _, v := range values[1:] {
		out += ", " + v
	}
	return out
}

func (s *Server) handleWatchdog(c *gin.Context) {
	var seconds float64
	if s.lastRefresh != nil {
		seconds = time.Since(s.lastRefresh()).Seconds()
	}
	c.JSON(http.StatusOK, gin.H{
		"registered_apps":         s.registry.Len(),
		"seconds_since_refresh":   seconds,
	})
}

func (s *Server) handleIngest(c *gin.Context) {
	start := time.Now()

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeError(c, gatewayerr.InvalidPayload("could not read request body"), start)
		return
	}

	var batch model.EventBatch
	if err := json.Unmarshal(rawBody, &batch); err != nil {
		s.writeError(c, gatewayerr.InvalidPayload("malformed JSON body"), start)
		return
	}

	appID := batch.Environment.AppID
	platform := reqcontext.PlatformFromBatch(batch.Device.Platform, batch.Device.OSName)

	reqCtx, err := reqcontext.Build(c.Request.Header, s.sealer, appID, platform)
	if err != nil {
		s.writeError(c, err, start)
		return
	}

	if err := s.admission.Admit(reqCtx, &batch, rawBody); err != nil {
		s.writeError(c, err, start)
		return
	}

	token := s.effectiveToken(appID, reqCtx.APIToken)

	result, err := s.resolveDeviceID(c.Request.Context(), reqCtx, &batch, token)
	if err != nil {
		if errors.Is(err, identitystore.ErrExhausted) {
			s.fatal("identity store write exhausted its retries, aborting", err)
		}
		s.writeError(c, gatewayerr.InternalServerError("resolver failure"), start)
		return
	}

	recipientID := ""
	if result.DeviceID != nil {
		recipientID = result.DeviceID.Cleartext
	}

	enriched := s.enrichBatch(appID, reqCtx.IP, recipientID, &batch)
	payload := sdkproto.Encode(enriched)

	if err := s.publisher.Publish(c.Request.Context(), appID, recipientID, payload); err != nil {
		s.writeError(c, gatewayerr.ServiceUnavailable("bus"), start)
		return
	}

	if reqCtx.Platform == model.PlatformWeb && reqCtx.Origin != "" {
		c.Writer.Header().Set("Access-Control-Allow-Origin", reqCtx.Origin)
	}
	c.JSON(http.StatusOK, buildResponse(&batch, s.registerEvent, result))

	metrics.RequestsTotal.WithLabelValues("200", "").Inc()
	metrics.RequestDuration.WithLabelValues("200").Observe(time.Since(start).Seconds())
	if s.log != nil {
		s.log.Info("ingest", logging.RequestFields(appID, string(platform), "200", "")...)
	}
}

// resolveDeviceID runs the resolver's identity-store round-trip on the
// worker pool, so a slow Redis call blocks a pool worker instead of
// the gin request goroutine.
func (s *Server) resolveDeviceID(ctx context.Context, reqCtx *model.Context, batch *model.EventBatch, token string) (resolver.Result, error) {
	type outcome struct {
		result resolver.Result
		err    error
	}
	done := make(chan outcome, 1)
	s.pool.Submit(func() {
		result, err := s.resolver.Resolve(ctx, reqCtx, batch, token)
		done <- outcome{result: result, err: err}
	})
	out := <-done
	return out.result, out.err
}

// enrichBatch runs the GeoIP-backed enrichment step on the worker pool
// for the same reason resolveDeviceID does.
func (s *Server) enrichBatch(appID, ip, recipientID string, batch *model.EventBatch) sdkproto.Batch {
	done := make(chan sdkproto.Batch, 1)
	s.pool.Submit(func() {
		done <- s.enricher.Enrich(time.Now(), appID, ip, recipientID, batch)
	})
	return <-done
}

// exitProcess terminates the process. It is a variable, not a direct
// os.Exit call, so tests can observe a would-be abort without killing
// the test binary: gin's Recovery middleware would otherwise swallow
// a plain panic and keep the server serving requests, which is the
// one thing an exhausted identity-store write must not do.
var exitProcess = os.Exit

// fatal logs msg at Error level and terminates the process. It is
// used for conditions the identity store itself treats as
// unrecoverable, such as exhausting its write retries.
func (s *Server) fatal(msg string, err error) {
	if s.log != nil {
		s.log.Error(msg, zap.Error(err))
	}
	exitProcess(1)
}

func (s *Server) effectiveToken(appID, requestToken string) string {
	if app, ok := s.registry.Lookup(appID); ok && app.Token != "" {
		return app.Token
	}
	return requestToken
}

func buildResponse(batch *model.EventBatch, registerEvent string, result resolver.Result) model.BatchResponse {
	results := make([]model.EventResult, 0, len(batch.Events))
	attached := false
	for _, ev := range batch.Events {
		er := model.EventResult{ID: ev.ID, Status: model.StatusSuccess}
		if !attached && ev.Name == registerEvent && result.RegistrationData != nil {
			er.RegistrationData = result.RegistrationData
			attached = true
		}
		results = append(results, er)
	}
	return model.BatchResponse{EventsStatus: results}
}

func (s *Server) writeError(c *gin.Context, err error, start time.Time) {
	ge, ok := gatewayerr.As(err)
	if !ok {
		ge = gatewayerr.InternalServerError(err.Error())
	}
	c.String(ge.Status(), ge.Reason)

	status := strconv.Itoa(ge.Status())
	metrics.RequestsTotal.WithLabelValues(status, string(ge.Kind)).Inc()
	metrics.RequestDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if s.log != nil {
		s.log.Warn("ingest rejected", logging.RequestFields("", "", status, string(ge.Kind))...)
	}
}
