package main

import (
	"fmt"

	"github.com/mahaj/duo-relay/pkg/push"
	"github.com/sirupsen/logrus"
)

// Prints a fresh VAPID key pair in .env form.
func main() {
	public, private, err := push.GenerateKeys()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to generate VAPID keys")
	}
	fmt.Printf("PUBLIC_VAPID_KEY=%s\nPRIVATE_VAPID_KEY=%s\n", public, private)
}
