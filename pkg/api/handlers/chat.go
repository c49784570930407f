package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"greenstorm/pkg/assistant"
	"greenstorm/pkg/auth"
	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
	"greenstorm/pkg/stream"
	"greenstorm/pkg/telemetry"
)

// RegisterChat registers the streaming chat endpoints to the provided
// router. All routes require an authenticated session.
func RegisterChat(r *mux.Router, d *Deps) {
	r.HandleFunc("/assistant/send", d.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/assistant/try_again", d.tryAgain).Methods(http.MethodPost)
	r.HandleFunc("/assistant/edit_message", d.editMessage).Methods(http.MethodPost)
	r.HandleFunc("/assistant/delete_message", d.deleteMessage).Methods(http.MethodPost)
	r.HandleFunc("/assistant/stop_response", d.stopResponse).Methods(http.MethodPost)
}

// sendMessage handles POST /assistant/send. The body carries the user's
// message; the response is an SSE stream of chunked assistant text.
func (d *Deps) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Message) == "" {
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	d.withFlight(w, r, sess, "send", func(ctx context.Context, sw *stream.SSEWriter) error {
		if err := d.Client.CreateMessage(ctx, sess.ThreadID, models.RoleUser, body.Message); err != nil {
			return err
		}
		logger.Info("message_sent", "user", sess.FirstName)
		return d.Dispatcher.Run(ctx, sess.FirstName, sess.ThreadID, d.AssistantID, sw)
	})
}

// tryAgain deletes the last exchange and replays the same user message.
func (d *Deps) tryAgain(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}

	res, err := d.Client.DeleteLastExchange(r.Context(), sess.ThreadID)
	if err != nil {
		writeExchangeError(w, sess.FirstName, "try_again", err)
		return
	}

	d.withFlight(w, r, sess, "try_again", func(ctx context.Context, sw *stream.SSEWriter) error {
		if err := d.Client.CreateMessage(ctx, sess.ThreadID, models.RoleUser, res.UserContent); err != nil {
			return err
		}
		logger.Info("message_retried", "user", sess.FirstName)
		return d.Dispatcher.Run(ctx, sess.FirstName, sess.ThreadID, d.AssistantID, sw)
	})
}

// editMessage deletes the last exchange and sends replacement content.
func (d *Deps) editMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	var body struct {
		NewMessage string `json:"new_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.NewMessage) == "" {
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	if _, err := d.Client.DeleteLastExchange(r.Context(), sess.ThreadID); err != nil {
		writeExchangeError(w, sess.FirstName, "edit_message", err)
		return
	}

	d.withFlight(w, r, sess, "edit_message", func(ctx context.Context, sw *stream.SSEWriter) error {
		if err := d.Client.CreateMessage(ctx, sess.ThreadID, models.RoleUser, body.NewMessage); err != nil {
			return err
		}
		logger.Info("message_edited", "user", sess.FirstName)
		return d.Dispatcher.Run(ctx, sess.FirstName, sess.ThreadID, d.AssistantID, sw)
	})
}

// deleteMessage removes the last user/assistant exchange without starting
// a new run.
func (d *Deps) deleteMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	if _, err := d.Client.DeleteLastExchange(r.Context(), sess.ThreadID); err != nil {
		writeExchangeError(w, sess.FirstName, "delete_message", err)
		return
	}
	logger.Info("exchange_removed", "user", sess.FirstName)
	_, _ = w.Write([]byte(`{"success":true}`))
}

// stopResponse cancels the thread's in-flight stream, if any. The cancel
// is advisory: the stream side emits its own cancellation frame.
func (d *Deps) stopResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	if d.flights.cancel(sess.ThreadID) {
		logger.Info("stop_requested", "user", sess.FirstName)
	} else {
		logger.Debug("stop_requested_idle", "user", sess.FirstName)
	}
	_, _ = w.Write([]byte(`{"status":"Stopping assistant response."}`))
}

// withFlight claims the thread's single streaming slot, opens the SSE
// response and runs fn. A busy thread yields 409 before any headers are
// written.
func (d *Deps) withFlight(w http.ResponseWriter, r *http.Request, sess models.Session, op string, fn func(context.Context, *stream.SSEWriter) error) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if !d.flights.begin(sess.ThreadID, cancel) {
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error":"a response is already streaming for this conversation"}`, http.StatusConflict)
		return
	}
	defer d.flights.end(sess.ThreadID)

	telemetry.StreamsStarted.WithLabelValues(op).Inc()

	sw, err := stream.NewSSEWriter(w)
	if err != nil {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	if err := fn(ctx, sw); err != nil {
		if errors.Is(err, context.Canceled) {
			sw.Cancelled()
			return
		}
		// Headers are gone; surface the failure on the stream itself.
		sw.Error(err.Error())
	}
}

func writeExchangeError(w http.ResponseWriter, user, op string, err error) {
	w.Header().Set("Content-Type", "application/json")
	if errors.Is(err, assistant.ErrNoMessages) || errors.Is(err, assistant.ErrNoUserMessage) {
		logger.Warn("exchange_delete_rejected", "user", user, "op", op, "error", err)
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	logger.Error("exchange_delete_failed", "user", user, "op", op, "error", err)
	http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
}
