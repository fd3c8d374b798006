// Package gateway is the HTTP surface of valuelog. Writes become commands
// on the commands log and are acknowledged with 202 before they are
// validated; reads are answered from the read model.
package gateway

import (
	"cmp"
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/edgeflare/valuelog/pkg/domain"
	"github.com/edgeflare/valuelog/pkg/httputil"
	"github.com/edgeflare/valuelog/pkg/httputil/middleware"
	"github.com/edgeflare/valuelog/pkg/metrics"
	"github.com/edgeflare/valuelog/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reader answers read-model lookups.
type Reader interface {
	Lookup(id uuid.UUID) (domain.Value, bool)
}

type Options struct {
	CommandsTopic  string        // defaults to "commands"
	PublishTimeout time.Duration // defaults to 5s
	CORS           *middleware.CORSOptions
}

type Gateway struct {
	pub    transport.Publisher
	reader Reader
	opts   Options
	logger *zap.Logger
}

func New(pub transport.Publisher, reader Reader, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.CommandsTopic = cmp.Or(opts.CommandsTopic, "commands")
	opts.PublishTimeout = cmp.Or(opts.PublishTimeout, 5*time.Second)
	return &Gateway{pub: pub, reader: reader, opts: opts, logger: logger.Named("gateway")}
}

// Router returns a router serving the gateway routes behind request id,
// access log and CORS middleware.
func (g *Gateway) Router(opts ...httputil.RouterOptions) *httputil.Router {
	r := httputil.NewRouter(append([]httputil.RouterOptions{httputil.WithLogger(g.logger)}, opts...)...)
	r.Use(
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: g.logger}),
		middleware.CORSWithOptions(g.opts.CORS),
	)

	r.HandleFunc("GET /healthz", g.healthz)
	r.HandleFunc("POST /values", g.createValue)
	r.HandleFunc("PUT /values/{id}", g.updateValue)
	r.HandleFunc("GET /values/{id}", g.getValue)
	return r
}

// Accepted is the body of a 202 response.
type Accepted struct {
	ValueID   uuid.UUID `json:"value_id"`
	CommandID uuid.UUID `json:"command_id"`
}

// ValueResponse is the body of a successful read. Value is null when the
// stored number is not finite.
type ValueResponse struct {
	ValueID uuid.UUID `json:"value_id"`
	Value   *float64  `json:"value"`
}

type createRequest struct {
	Value *float64 `json:"value"`
}

type updateRequest struct {
	Operation string   `json:"operation"`
	Value     *float64 `json:"value"`
}

func (g *Gateway) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) createValue(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.BindOrError(r, w, &req); err != nil {
		return
	}
	if req.Value == nil {
		httputil.Error(w, http.StatusBadRequest, "missing field: value")
		return
	}

	cmd := domain.NewCreateValue(*req.Value)
	g.submit(w, r, cmd, cmd.Data.ValueID)
}

func (g *Gateway) updateValue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid value id")
		return
	}

	var req updateRequest
	if err := httputil.BindOrError(r, w, &req); err != nil {
		return
	}
	if req.Value == nil {
		httputil.Error(w, http.StatusBadRequest, "missing field: value")
		return
	}
	op, err := domain.ParseOperation(req.Operation)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "operation must be ADD or MULTIPLY")
		return
	}

	g.submit(w, r, domain.NewUpdateValue(id, op, *req.Value), id)
}

// submit publishes cmd to the commands log. Success only means the command
// was appended; it may still be rejected by validation.
func (g *Gateway) submit(w http.ResponseWriter, r *http.Request, cmd domain.Command, valueID uuid.UUID) {
	logger := middleware.Logger(r.Context()).With(
		zap.String("action", cmd.Action()),
		zap.Stringer("command_id", cmd.CommandID()),
		zap.Stringer("value_id", valueID))

	payload, err := domain.EncodeCommand(cmd)
	if err != nil {
		logger.Error("Failed to encode command", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "failed to encode command")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.opts.PublishTimeout)
	defer cancel()
	if err := g.pub.Publish(ctx, g.opts.CommandsTopic, cmd.CommandID().String(), payload); err != nil {
		metrics.PublishErrors.WithLabelValues(g.opts.CommandsTopic).Inc()
		logger.Warn("Failed to publish command", zap.Error(err))
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.Canceled) {
			// client went away
			status = http.StatusRequestTimeout
		}
		httputil.Error(w, status, "command log unavailable")
		return
	}

	logger.Debug("Command published")
	httputil.JSON(w, http.StatusAccepted, Accepted{ValueID: valueID, CommandID: cmd.CommandID()})
}

func (g *Gateway) getValue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid value id")
		return
	}

	v, ok := g.reader.Lookup(id)
	if !ok {
		httputil.Error(w, http.StatusNotFound, "value not found")
		return
	}

	resp := ValueResponse{ValueID: v.ValueID}
	if math.IsInf(v.Value, 0) || math.IsNaN(v.Value) {
		middleware.Logger(r.Context()).Warn("Value is not finite", zap.Stringer("value_id", id))
	} else {
		resp.Value = &v.Value
	}
	httputil.JSON(w, http.StatusOK, resp)
}
