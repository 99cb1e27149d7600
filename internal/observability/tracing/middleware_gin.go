package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/goalforge/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinSessionKey is the gin context key the live handler sets once a socket
// session is registered, so the handshake span can carry it.
const GinSessionKey = "live_session_id"

const (
	attrLiveSession = attribute.Key("goalforge.live.session_id")
	attrLiveChannel = attribute.Key("goalforge.live.channel")
	attrRateLimited = attribute.Key("goalforge.rate_limited")
)

var untracedRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware instruments inbound HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	return ginMiddleware(otel.GetTracerProvider())
}

func ginMiddleware(tp trace.TracerProvider) gin.HandlerFunc {
	tracer := tp.Tracer("goalforge/http")
	return func(c *gin.Context) {
		if _, skip := untracedRoutes[c.FullPath()]; skip {
			c.Next()
			return
		}

		live := isLiveUpgrade(c.Request)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, spanName(c.Request.Method, c.FullPath(), live), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", routeOrUnknown(route)),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		if userID := c.GetString("user_id"); userID != "" {
			attrs = append(attrs, attribute.String("user.id", userID))
		}
		if attr, ok := resourceAttribute(route, c.Param("id")); ok {
			attrs = append(attrs, attr)
		}
		if sessionID := c.GetString(GinSessionKey); sessionID != "" {
			attrs = append(attrs, attrLiveSession.String(sessionID))
		}
		if status == http.StatusTooManyRequests {
			attrs = append(attrs, attrRateLimited.Bool(true))
		}
		span.SetName(spanName(c.Request.Method, route, live))
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

// spanName follows "{method} {route}". The live handshake is named LIVE
// because its span lasts as long as the socket.
func spanName(method, route string, live bool) string {
	verb := strings.ToUpper(method)
	if live {
		verb = "LIVE"
	}
	return verb + " " + routeOrUnknown(route)
}

func routeOrUnknown(route string) string {
	if route == "" {
		return "unknown"
	}
	return route
}

// resourceAttribute names the :id param after the resource family it
// belongs to, e.g. /api/challenges/:id/join gives challenge.id.
func resourceAttribute(route, id string) (attribute.KeyValue, bool) {
	if id == "" {
		return attribute.KeyValue{}, false
	}
	parts := strings.Split(strings.Trim(route, "/"), "/")
	for i, part := range parts {
		if part != ":id" || i == 0 {
			continue
		}
		family := strings.TrimSuffix(parts[i-1], "s")
		return attribute.String(family+".id", id), true
	}
	return attribute.KeyValue{}, false
}

func isLiveUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
