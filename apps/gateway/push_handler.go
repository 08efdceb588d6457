package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-playground/validator/v10"
	"github.com/mahaj/duo-relay/pkg/push"
	"github.com/sirupsen/logrus"
)

type subscriptionRequest struct {
	Username     string                `json:"username" validate:"required,max=64"`
	Subscription *webpush.Subscription `json:"subscription" validate:"required"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func vapidKeyHandler(publicKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if publicKey == "" {
			writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"publicKey": publicKey})
	}
}

func subscriptionHandler(bridge *push.Bridge, log logrus.FieldLogger) http.HandlerFunc {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "username and subscription are required")
			return
		}
		if err := bridge.RegisterSubscription(req.Username, *req.Subscription); err != nil {
			if errors.Is(err, push.ErrInvalid) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.WithError(err).Error("Failed to register push subscription")
			writeError(w, http.StatusInternalServerError, "could not register subscription")
			return
		}
		log.WithField("username", req.Username).Info("Push subscription registered")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func healthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := hub.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"time":   time.Now().UTC(),
			"relay":  stats,
		})
	}
}

// withCORS answers preflight requests and tags every response for origin.
func withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
