package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"greenstorm/pkg/auth"
	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
	"greenstorm/pkg/store"
	"greenstorm/pkg/validation"
)

// RegisterLogin registers the unauthenticated login endpoint.
func RegisterLogin(r *mux.Router, d *Deps) {
	r.HandleFunc("/login", d.login).Methods(http.MethodPost)
}

// RegisterAccount registers the session-scoped account endpoints.
func RegisterAccount(r *mux.Router, d *Deps) {
	r.HandleFunc("/logout", d.logout).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/history", d.history).Methods(http.MethodGet)
	r.HandleFunc("/assistant/settings", d.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/assistant/settings", d.updateSettings).Methods(http.MethodPost)
}

// login finds or creates the named user, provisioning a provider thread
// for new users, and issues a session cookie.
func (d *Deps) login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var body struct {
		FirstName string `json:"first_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	firstName := strings.TrimSpace(body.FirstName)
	if err := validation.ValidateFirstName(firstName); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	user, err := store.GetUser(firstName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		threadID, err := d.Client.CreateThread(r.Context())
		if err != nil {
			logger.Error("thread_create_failed", "user", firstName, "error", err)
			http.Error(w, `{"error":"could not provision conversation"}`, http.StatusBadGateway)
			return
		}
		user = models.User{FirstName: firstName, ThreadID: threadID}
		if err := store.SaveUser(user); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		logger.Info("user_created", "user", firstName, "thread", threadID)
	case err != nil:
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	if _, err := d.Sessions.Issue(w, user.FirstName, user.ThreadID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"first_name": user.FirstName,
		"thread_id":  user.ThreadID,
	})
}

func (d *Deps) logout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	d.Sessions.Revoke(w, r)
	_, _ = w.Write([]byte(`{"success":true}`))
}

// history returns the thread's last 50 messages, oldest first.
func (d *Deps) history(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}

	msgs, err := d.Client.ListMessages(r.Context(), sess.ThreadID, 50, "desc")
	if err != nil {
		logger.Error("history_fetch_failed", "user", sess.FirstName, "error", err)
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadGateway)
		return
	}

	type entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	history := make([]entry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		history = append(history, entry{Role: msgs[i].Role, Content: msgs[i].Content})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"history": history})
}

func (d *Deps) getSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	user, err := store.GetUser(sess.FirstName)
	if err != nil {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"class_schedules": user.Settings.ClassSchedulesURL,
		"all_assignments": user.Settings.AllAssignmentsURL,
	})
}

func (d *Deps) updateSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		ClassSchedules string `json:"class_schedules"`
		AllAssignments string `json:"all_assignments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if body.ClassSchedules == "" || body.AllAssignments == "" {
		http.Error(w, `{"error":"all settings fields are required"}`, http.StatusBadRequest)
		return
	}
	for _, feed := range []string{body.ClassSchedules, body.AllAssignments} {
		if err := validation.ValidateFeedURL(feed); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
	}

	user, err := store.GetUser(sess.FirstName)
	if err != nil {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		return
	}
	user.Settings.ClassSchedulesURL = body.ClassSchedules
	user.Settings.AllAssignmentsURL = body.AllAssignments
	if err := store.SaveUser(user); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("settings_updated", "user", sess.FirstName)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Settings updated successfully!"})
}
