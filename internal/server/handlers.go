package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/creatormatch/scout/internal/fault"
	"github.com/creatormatch/scout/internal/health"
	"github.com/creatormatch/scout/internal/model"
)

// defaultMaxBodyBytes bounds the /matches request body.
const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Matcher runs the match pipeline. Satisfied by *match.Service.
type Matcher interface {
	Match(ctx context.Context, req model.MatchRequest) (model.MatchResponse, error)
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	matcher        Matcher
	health         *health.Aggregator
	logger         *slog.Logger
	requestTimeout time.Duration
	maxBodyBytes   int64
}

// HandlersDeps carries handler dependencies.
type HandlersDeps struct {
	Matcher             Matcher
	Health              *health.Aggregator
	Logger              *slog.Logger
	RequestTimeout      time.Duration
	MaxRequestBodyBytes int64
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(deps HandlersDeps) *Handlers {
	maxBody := deps.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Handlers{
		matcher:        deps.Matcher,
		health:         deps.Health,
		logger:         deps.Logger,
		requestTimeout: timeout,
		maxBodyBytes:   maxBody,
	}
}

// HandleMatch handles POST /matches.
func (h *Handlers) HandleMatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req model.MatchRequest
	if err := decodeJSON(r, &req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.matcher.Match(ctx, req)
	if err != nil {
		h.writeMatchError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// writeMatchError maps pipeline faults onto HTTP statuses and the standard
// error envelope.
func (h *Handlers) writeMatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		var verrs model.ValidationErrors
		if errors.As(err, &verrs) {
			writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assignment", verrs)
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case fault.KindNotFound:
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	case fault.KindThrottled:
		if hint := fault.RetryAfter(err); hint > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(hint.Seconds())))
		}
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "upstream throttled")
	case fault.KindUnavailable, fault.KindCircuitOpen:
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "dependency unavailable")
	case fault.KindDeadline:
		writeError(w, r, http.StatusGatewayTimeout, model.ErrCodeDeadline, "request deadline exceeded")
	default:
		h.logger.Error("match pipeline failed",
			"error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
	}
}

// HandleHealth handles GET /health. Critical status maps to 503 so load
// balancers stop routing; degraded still serves traffic and returns 200.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.health.Snapshot()
	status := http.StatusOK
	if snap.Status == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, snap)
}
