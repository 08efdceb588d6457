package main

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/mahaj/duo-relay/pkg/presence"
	"github.com/sirupsen/logrus"
)

type PresenceHandler struct {
	reader presence.Reader
	log    logrus.FieldLogger
}

func NewPresenceHandler(reader presence.Reader, log logrus.FieldLogger) *PresenceHandler {
	return &PresenceHandler{reader: reader, log: log}
}

// ServeHTTP lists the users the gateway currently reports online.
func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	users, err := h.reader.Members(r.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch presence")
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}
	sort.Strings(users)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"online": users})
}
