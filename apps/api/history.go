package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mahaj/duo-relay/pkg/auth"
	"github.com/mahaj/duo-relay/pkg/db"
	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
)

type HistoryStore interface {
	History(ctx context.Context, conversationID string, limit int) ([]db.ArchivedMessage, error)
}

type HistoryHandler struct {
	store HistoryStore
	limit int
	log   logrus.FieldLogger
}

func NewHistoryHandler(store HistoryStore, limit int, log logrus.FieldLogger) *HistoryHandler {
	return &HistoryHandler{store: store, limit: limit, log: log}
}

// ServeHTTP returns the caller's conversation with the user named by ?with=,
// newest first.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	peer := r.URL.Query().Get("with")
	if peer == "" {
		http.Error(w, "with is required", http.StatusBadRequest)
		return
	}

	conversation := model.ConversationID(claims.Username, peer)
	messages, err := h.store.History(r.Context(), conversation, h.limit)
	if err != nil {
		h.log.WithError(err).WithField("conversation", conversation).Error("Failed to read history")
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []db.ArchivedMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
