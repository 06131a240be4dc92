package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/ratelimit"
	"github.com/rbxdash/admin-relay/internal/remote"
	"github.com/rbxdash/admin-relay/internal/workflow"
)

// statusClientClosedRequest is logged when the dashboard goes away mid-call.
const statusClientClosedRequest = 499

// forwardedHeaders are copied from the dashboard request to the remote API.
var forwardedHeaders = []string{"Accept", "Accept-Language", "Authorization", "Content-Type"}

type statusResponse struct {
	connectivity.Snapshot
	LoginRedirects int64 `json:"login_redirects"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Action     string `json:"action,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (h *handler) status(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResponse{
		Snapshot:       h.session.Monitor.Snapshot(),
		LoginRedirects: h.session.LoginRedirects(),
	})
}

func (h *handler) recheck(c *gin.Context) {
	snap := h.session.Monitor.Recheck(c.Request.Context())
	writeJSON(c, http.StatusOK, statusResponse{
		Snapshot:       snap,
		LoginRedirects: h.session.LoginRedirects(),
	})
}

func (h *handler) proxy(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: err.Error()})
		return
	}
	if len(body) == 0 {
		body = nil
	}

	req := remote.Request{
		Method: c.Request.Method,
		Path:   c.Param("path"),
		Query:  c.Request.URL.Query(),
		Header: http.Header{},
		Body:   body,
	}
	for _, name := range forwardedHeaders {
		if v := c.GetHeader(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	action := workflow.InferAction(req.Method, req.Path, req.Header)
	// The login form is an unauthenticated surface.
	req.Anonymous = action == ratelimit.ActionLogin

	out, err := h.session.Call(c.Request.Context(), action, req)
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		writeJSON(c, http.StatusTooManyRequests, errorResponse{
			Error:      "rate_limited",
			Message:    limitErr.Message(),
			Action:     string(limitErr.Action),
			RetryAfter: seconds,
		})
		return
	}

	if out.RequestID != "" {
		c.Header("X-Request-Id", out.RequestID)
	}

	switch out.Kind {
	case remote.KindSuccess:
		c.Data(out.Status, out.Header.Get("Content-Type"), out.Body)
	case remote.KindUnauthorized:
		c.Header("X-Login-Required", "true")
		writeJSON(c, http.StatusUnauthorized, errorResponse{
			Error:     "unauthorized",
			Message:   "Your session has expired. Please log in again.",
			RequestID: out.RequestID,
		})
	case remote.KindClientError:
		if out.Status == 0 {
			writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: out.LastErr.Error()})
			return
		}
		c.Data(out.Status, out.Header.Get("Content-Type"), out.Body)
	case remote.KindCanceled:
		c.Status(statusClientClosedRequest)
	default:
		status := http.StatusGatewayTimeout
		if out.Status >= 500 {
			status = http.StatusBadGateway
		}
		writeJSON(c, status, errorResponse{
			Error:     "upstream_unavailable",
			Message:   "The remote API is unreachable right now. Please try again later.",
			Attempts:  out.Attempts,
			RequestID: out.RequestID,
		})
	}
}
