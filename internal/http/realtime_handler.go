package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/realtime"
	"github.com/example/oficios-registry/internal/slot"
)

// Stream event names besides the change types.
const (
	EventReady   = "ready"
	EventDropped = "dropped"
)

// DefaultHeartbeat is the interval between keep-alive comments on idle streams.
const DefaultHeartbeat = 15 * time.Second

type changeBroker interface {
	Subscribe(kind slot.Kind, yearID string) *realtime.Subscription
}

// RealtimeHandler streams slot changes of one year as server-sent events.
type RealtimeHandler struct {
	broker    changeBroker
	heartbeat time.Duration
	responder responder
	logger    *slog.Logger
}

func NewRealtimeHandler(broker changeBroker, heartbeat time.Duration, logger *slog.Logger) *RealtimeHandler {
	base := logging.Or(logger)
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &RealtimeHandler{broker: broker, heartbeat: heartbeat, responder: newResponder(base), logger: base}
}

func (h *RealtimeHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return logging.Scoped(ctx, h.logger, "handler", "RealtimeHandler", operation, attrs...)
}

// Stream handles GET /realtime/{kind}?ano_id=. The first frame is a ready
// event sent once the subscription is registered; every later frame is a
// change named after its type. The stream ends with a dropped event when
// the subscriber falls behind.
func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.broker == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	kind, ok := kindFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errUnknownKind)
		return
	}
	yearID := strings.TrimSpace(r.URL.Query().Get("ano_id"))
	if yearID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingYearID)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Stream", "principal_id", principal.UserID, "kind", kind.Name, "ano_id", yearID)

	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.broker.Subscribe(kind, yearID)
	defer sub.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, EventReady, map[string]string{"kind": kind.Name, "ano_id": yearID}); err != nil {
		logger.WarnContext(ctx, "failed to open stream", "error", err)
		return
	}
	if err := rc.Flush(); err != nil {
		logger.WarnContext(ctx, "stream flush unsupported", "error", err)
		return
	}
	logger.InfoContext(ctx, "stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "stream closed by client")
			return
		case change, ok := <-sub.Events():
			if !ok {
				_ = writeEvent(w, EventDropped, map[string]string{"ano_id": yearID})
				_ = rc.Flush()
				logger.WarnContext(ctx, "stream dropped by broker")
				return
			}
			if err := writeEvent(w, string(change.Type), change); err != nil {
				logger.WarnContext(ctx, "failed to write change", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
