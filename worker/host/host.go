// Package host runs the worker side of the message protocol: it decodes
// requests, applies them to a worker and encodes the responses.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/metrics"
	"github.com/tomyedwab/sqlight/worker"
	"github.com/tomyedwab/sqlight/worker/types"
)

// AuditLogger records handled requests.
type AuditLogger interface {
	LogRequest(command, sessionID, sql, errorKind string, duration time.Duration) error
}

// Conn carries whole messages between a host and one client.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
}

type Config struct {
	Worker *worker.Worker
	// Audit is optional.
	Audit  AuditLogger
	Logger *slog.Logger
}

// Host handles protocol requests for a worker.
type Host struct {
	worker *worker.Worker
	audit  AuditLogger
	logger *slog.Logger
}

func New(config Config) *Host {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Worker == nil {
		config.Worker = worker.New(worker.Config{Logger: config.Logger})
	}
	return &Host{
		worker: config.Worker,
		audit:  config.Audit,
		logger: config.Logger.With("component", "host"),
	}
}

// Worker returns the worker requests are applied to.
func (h *Host) Worker() *worker.Worker {
	return h.worker
}

// Serve announces readiness on conn and then handles its requests one at a
// time, in arrival order, until the client disconnects or ctx is done.
func (h *Host) Serve(ctx context.Context, conn Conn) error {
	ready, err := json.Marshal(types.Response{Command: types.CommandReady})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(ready); err != nil {
		return fmt.Errorf("failed to send ready: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := conn.ReadMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read request: %w", err)
		}
		response, err := h.HandleRequest(ctx, payload)
		if err != nil {
			h.logger.Error("Failed to encode response", "error", err)
		}
		if err := conn.WriteMessage(response); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// HandleRequest processes a raw request payload and returns a raw response
// payload. Operational errors are reported inside the response; the error
// return is only set when the response itself cannot be encoded.
func (h *Host) HandleRequest(ctx context.Context, requestPayload []byte) ([]byte, error) {
	var req types.Request
	if err := json.Unmarshal(requestPayload, &req); err != nil {
		return marshalResponse(types.Response{
			Error: types.FromError(fmt.Errorf("%w: %v", types.ErrBadRequest, err)),
		})
	}
	return marshalResponse(h.Handle(ctx, &req))
}

func marshalResponse(resp types.Response) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		// Can't even marshal the response; fall back to a bare error.
		fallback, _ := json.Marshal(types.Response{
			Command: resp.Command,
			Error:   &types.ErrorPayload{Kind: types.KindUnexpected, Message: err.Error()},
		})
		return fallback, fmt.Errorf("failed to marshal %s response: %w", resp.Command, err)
	}
	return payload, nil
}

// Handle applies one decoded request.
func (h *Host) Handle(ctx context.Context, req *types.Request) types.Response {
	start := time.Now()

	var resp types.Response
	var opErr error

	switch req.Command {
	case types.CommandOpen:
		resp.ID, opErr = h.worker.Open(ctx, worker.OpenOptions{Filename: req.Filename, Persist: req.Persist})
	case types.CommandPrepare:
		opErr = h.worker.Prepare(ctx, req.ID, req.SQL, req.ClearOnPrepare)
	case types.CommandContinue:
		resp.Results, opErr = h.worker.Continue(req.ID)
	case types.CommandStepOver:
		var result engine.StatementResult
		if result, opErr = h.worker.StepOver(req.ID); opErr == nil {
			resp.Result = &result
		}
	case types.CommandStepIn:
		opErr = h.worker.StepIn(req.ID)
	case types.CommandStepOut:
		var result engine.StatementResult
		if result, opErr = h.worker.StepOut(req.ID); opErr == nil {
			resp.Result = &result
		}
	case types.CommandLoadDB:
		opErr = h.worker.LoadDB(ctx, req.ID, req.Data)
	case types.CommandDownloadDB:
		resp.Filename, resp.Data, opErr = h.worker.DownloadDB(req.ID)
	case types.CommandClose:
		opErr = h.worker.Close(req.ID)
	default:
		opErr = fmt.Errorf("%w: unknown command %q", types.ErrBadRequest, req.Command)
	}

	if opErr != nil {
		resp = types.Response{ID: req.ID, Error: types.FromError(opErr)}
	} else if req.Command != types.CommandOpen {
		resp.ID = req.ID
	}
	resp.Command = req.Command

	h.observe(req, &resp, time.Since(start))
	return resp
}

func (h *Host) observe(req *types.Request, resp *types.Response, elapsed time.Duration) {
	command := string(req.Command)
	if resp.Error != nil && resp.Error.Kind == types.KindBadRequest {
		command = "unknown"
	}
	status, errorKind := metrics.Ok, ""
	if resp.Error != nil {
		status, errorKind = metrics.Fail, string(resp.Error.Kind)
	}
	metrics.RequestsTotal.WithLabelValues(command, status).Inc()
	metrics.RequestDurationSeconds.WithLabelValues(command).Observe(elapsed.Seconds())

	results := resp.Results
	if resp.Result != nil {
		results = append(results, *resp.Result)
	}
	for _, r := range results {
		if r.Step == nil {
			continue
		}
		metrics.StatementsTotal.Inc()
		if r.Step.Values != nil {
			metrics.RowsReturnedTotal.Add(float64(len(r.Step.Values.Rows)))
		}
	}
	if pool, err := h.worker.Storage().Pool(); err == nil {
		metrics.PoolCapacity.Set(float64(pool.Capacity()))
		metrics.PoolFiles.Set(float64(pool.FileCount()))
	}

	if resp.Error != nil {
		h.logger.Warn("Request failed", "command", command, "id", req.ID, "kind", errorKind, "error", resp.Error.Message)
	} else {
		h.logger.Debug("Handled request", "command", command, "id", resp.ID, "elapsed", elapsed)
	}

	if h.audit != nil {
		sessionID := req.ID
		if req.Command == types.CommandOpen {
			sessionID = resp.ID
		}
		if err := h.audit.LogRequest(command, sessionID, req.SQL, errorKind, elapsed); err != nil {
			h.logger.Error("Failed to record audit event", "error", err)
		}
	}
}
