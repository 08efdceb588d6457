package main

import (
	"flag"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mahaj/duo-relay/pkg/auth"
	"github.com/sirupsen/logrus"
)

// Mints a token the way the gateway does at login and exercises the api.
func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	user := flag.String("user", "alice", "identity to mint a token for")
	peer := flag.String("with", "bob", "other participant")
	flag.Parse()

	log := logrus.New()
	tokens, err := auth.NewTokens(os.Getenv("TOKEN_SECRET"), time.Hour)
	if err != nil {
		log.WithError(err).Fatal("TOKEN_SECRET must match the api")
	}
	token, err := tokens.Issue(*user)
	if err != nil {
		log.WithError(err).Fatal("Failed to mint token")
	}

	for _, path := range []string{"/history?with=" + *peer, "/presence"} {
		req, err := http.NewRequest(http.MethodGet, *apiAddr+path, nil)
		if err != nil {
			log.WithError(err).Fatal("Bad request")
		}
		req.Header.Add("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.WithError(err).Fatal("Request failed")
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Info(string(body))
	}
}
