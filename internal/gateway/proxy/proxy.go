package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zainab-hr/ProjetProduits/pkg/logger"
	"github.com/zainab-hr/ProjetProduits/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ServiceConfig holds configuration for a backend service
type ServiceConfig struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// RouteConfig holds configuration for a route
type RouteConfig struct {
	// PathPrefix is the prefix that triggers this route (e.g. "/auth")
	PathPrefix string
	// StripPrefix removes the prefix before forwarding
	StripPrefix string
	// Service is the target backend service
	Service ServiceConfig
	// RequireAuth demands a verified bearer token
	RequireAuth bool
	// PublicRead lets GET and HEAD requests through without a token even
	// when RequireAuth is set
	PublicRead bool
	// AllowedMethods restricts which HTTP methods are allowed (empty = all)
	AllowedMethods []string
}

// Config holds the overall proxy configuration
type Config struct {
	Routes         []RouteConfig
	DefaultTimeout time.Duration
}

// ReverseProxy routes requests to backend services
type ReverseProxy struct {
	config  Config
	proxies map[string]*httputil.ReverseProxy
	mu      sync.RWMutex
}

// NewReverseProxy creates a new reverse proxy instance
func NewReverseProxy(config Config) *ReverseProxy {
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          1000,
		MaxIdleConnsPerHost:   1000,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	rp := &ReverseProxy{
		config:  config,
		proxies: make(map[string]*httputil.ReverseProxy),
	}

	for _, route := range config.Routes {
		if _, exists := rp.proxies[route.Service.Name]; !exists {
			rp.initProxy(route.Service, transport)
		}
	}

	return rp
}

func (rp *ReverseProxy) initProxy(service ServiceConfig, transport http.RoundTripper) {
	targetURL, err := url.Parse(service.BaseURL)
	if err != nil {
		// Every request to this service will 500 until the URL is fixed
		logger.Get().Error("Invalid backend service URL",
			zap.String("service", service.Name),
			zap.String("base_url", service.BaseURL),
			zap.Error(err),
		)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	proxy.Transport = transport

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = targetURL.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.Header().Set("Content-Type", "application/json")
		if isTimeoutError(err) {
			w.WriteHeader(http.StatusGatewayTimeout)
			io.WriteString(w, `{"success":false,"message":"Backend service timed out","data":null}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"success":false,"message":"Backend service unavailable","data":null}`)
	}

	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Set("X-Proxied-By", "api-gateway")
		return nil
	}

	rp.mu.Lock()
	rp.proxies[service.Name] = proxy
	rp.mu.Unlock()
}

// findRoute finds the matching route for a request
func (rp *ReverseProxy) findRoute(path, method string) *RouteConfig {
	for i := range rp.config.Routes {
		route := &rp.config.Routes[i]
		if !strings.HasPrefix(path, route.PathPrefix) {
			continue
		}
		if len(route.AllowedMethods) > 0 {
			allowed := false
			for _, m := range route.AllowedMethods {
				if strings.EqualFold(m, method) {
					allowed = true
					break
				}
			}
			if !allowed {
				continue
			}
		}
		return route
	}
	return nil
}

// RequiresAuth reports whether the route matching path and method demands
// a verified token. Reads on PublicRead routes pass without one. Unmatched
// paths report false; the proxy handler rejects them with 404 anyway.
func (rp *ReverseProxy) RequiresAuth(path, method string) bool {
	route := rp.findRoute(path, method)
	if route == nil || !route.RequireAuth {
		return false
	}
	if route.PublicRead && (method == http.MethodGet || method == http.MethodHead) {
		return false
	}
	return true
}

// Handler returns a Gin handler that forwards matched requests upstream
func (rp *ReverseProxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "gateway.proxy")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.Request.URL.Path),
		)

		route := rp.findRoute(c.Request.URL.Path, c.Request.Method)
		if route == nil {
			span.SetStatus(codes.Error, "no route configured for this path")
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "No route configured for this path",
				"data":    nil,
			})
			c.Abort()
			return
		}

		span.SetAttributes(attribute.String("target.service", route.Service.Name))

		rp.mu.RLock()
		proxy, exists := rp.proxies[route.Service.Name]
		rp.mu.RUnlock()

		if !exists {
			span.SetStatus(codes.Error, "backend service not configured")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Backend service not configured",
				"data":    nil,
			})
			c.Abort()
			return
		}

		if route.StripPrefix != "" {
			c.Request.URL.Path = strings.TrimPrefix(c.Request.URL.Path, route.StripPrefix)
			if c.Request.URL.Path == "" {
				c.Request.URL.Path = "/"
			}
		}

		timeout := route.Service.Timeout
		if timeout == 0 {
			timeout = rp.config.DefaultTimeout
		}
		timeoutCtx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(timeoutCtx)

		span.SetStatus(codes.Ok, "")

		func() {
			defer func() {
				if r := recover(); r != nil {
					// The writer may be partially written, so no c.JSON here
					span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
					span.RecordError(fmt.Errorf("panic: %v", r))
				}
			}()
			proxy.ServeHTTP(c.Writer, c.Request)
		}()
	}
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	if err == context.DeadlineExceeded {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
