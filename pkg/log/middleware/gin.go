package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
	"moff.io/wallet-verify/pkg/log/meta"
)

const requestIDHeader = "x-request-id"

// responseBodyWriter records the handler response body.
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r responseBodyWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

type httpInfo struct {
	Headers       map[string]string      `json:"headers"`
	Method        string                 `json:"method"`
	RequestAPI    string                 `json:"request_api,omitempty"`
	RemoteAddr    string                 `json:"remote_addr,omitempty"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	Response      *response              `json:"response,omitempty"`
	ExecutionTime string                 `json:"execution_time,omitempty"`
}

func (in *httpInfo) String() string {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Sprintf("%s %s", in.Method, in.RequestAPI)
	}
	return string(data)
}

func newHTTPInfo(ctx *gin.Context) *httpInfo {
	return &httpInfo{
		Headers:    requestHeaderFilter(ctx.Request.Header),
		Method:     ctx.Request.Method,
		RequestAPI: redactQuery(ctx.Request.URL.Path, ctx.Request.URL.RawQuery),
		RemoteAddr: ctx.ClientIP(),
		Meta:       meta.Fields(ctx.Request.Context()),
	}
}

// RecoveredHTTPLog logs every request with its response status and recovers
// handler panics. Register it before any middleware that may abort.
func RecoveredHTTPLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rctx := meta.Begin(ctx.Request.Context())
		requestID := ctx.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		meta.WithValue(rctx, meta.RequestIDKey, requestID)
		ctx.Request = ctx.Request.WithContext(rctx)
		ctx.Header(requestIDHeader, requestID)

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: ctx.Writer}
		ctx.Writer = w

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err := errors.ErrorfAndReport("%v", r)
				log.Error(err)
			}
			logHTTP(ctx, w, start)
		}()
		ctx.Next()
	}
}

const defaultRequestTimeout = time.Second * 60

// TimeoutHTTP bounds the request context. Wallet steps may wait for the user
// to approve in their wallet, so the page server passes a longer timeout.
func TimeoutHTTP(timeout ...time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		d := defaultRequestTimeout
		if len(timeout) != 0 && timeout[0] > 0 {
			d = timeout[0]
		}
		timeoutCtx, cancelFunc := context.WithTimeout(ctx.Request.Context(), d)
		defer cancelFunc()
		ctx.Request = ctx.Request.WithContext(timeoutCtx)
		ctx.Next()
	}
}

func logHTTP(ctx *gin.Context, w *responseBodyWriter, start time.Time) {
	if !ctx.Writer.Written() {
		ctx.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code": 5000,
			"msg":  "Server internal error",
		})
	}

	s := w.Status()
	info := newHTTPInfo(ctx)
	info.Response = decodeHandlerResponse(w.Header().Get("Content-Type"), w.body.Bytes(), s)
	info.ExecutionTime = fmt.Sprintf("%vms", time.Since(start).Nanoseconds()/1e6)
	switch {
	case s < http.StatusBadRequest:
		log.Info(info.String())
	case s >= http.StatusInternalServerError:
		log.Error(info.String())
	default:
		log.Warn(info.String())
	}
}

type response struct {
	ProtocolCode int         `json:"protocol_code"`
	Code         interface{} `json:"code,omitempty"`
	Message      interface{} `json:"msg,omitempty"`
	Size         int         `json:"size,omitempty"`
}

func decodeHandlerResponse(contentType string, respBody []byte, httpCode int) *response {
	resp := response{ProtocolCode: httpCode}
	if !strings.HasPrefix(contentType, "application/json") {
		resp.Size = len(respBody)
		return &resp
	}
	_ = json.Unmarshal(respBody, &resp)
	return &resp
}

var excludedHeaders = map[string]bool{
	"token":         true,
	"access-token":  true,
	"authorization": true,
	"cookie":        true,
}

func requestHeaderFilter(headers map[string][]string) map[string]string {
	filtered := make(map[string]string)
	for k, v := range headers {
		k = strings.ToLower(k)
		if excludedHeaders[k] {
			continue
		}
		filtered[k] = strings.Join(v, ";")
	}
	return filtered
}

// OAuth authorization codes are single use but still credentials.
var redactedParams = []string{"code"}

func redactQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	parts := strings.Split(rawQuery, "&")
	for i, p := range parts {
		for _, name := range redactedParams {
			if strings.HasPrefix(p, name+"=") {
				parts[i] = name + "=***"
			}
		}
	}
	return path + "?" + strings.Join(parts, "&")
}
