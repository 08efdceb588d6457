package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
)

func send(c *websocket.Conn, event model.EventType, data any) error {
	env, err := model.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.WriteJSON(env)
}

// render prints one inbound envelope. It returns the acknowledgements the
// client owes for it.
func render(env model.Envelope, self string) []model.Envelope {
	switch env.Event {
	case model.EventLoginAccepted:
		var ok model.LoginAccepted
		env.Decode(&ok)
		fmt.Printf("\rLogged in as %s\n", ok.Username)
	case model.EventLoginRejected, model.EventError:
		var r model.Reason
		env.Decode(&r)
		fmt.Printf("\r[%s] %s\n", env.Event, r.Reason)
	case model.EventUserJoined, model.EventUserLeft, model.EventUserTyping, model.EventUserStopTyping:
		var p model.Peer
		env.Decode(&p)
		fmt.Printf("\r* %s %s\n", p.Username, strings.TrimPrefix(string(env.Event), "user-"))
	case model.EventPendingStart:
		var p model.PendingStart
		env.Decode(&p)
		fmt.Printf("\r%d messages arrived while you were away\n", p.Count)
	case model.EventStatusUpdate:
		var u model.StatusUpdate
		env.Decode(&u)
		fmt.Printf("\r  %s: %s\n", u.MessageID, u.Status)
	case model.EventReceiveMessage:
		var m model.Message
		if err := env.Decode(&m); err != nil {
			return nil
		}
		fmt.Printf("\r[%s] %s: %s\n", m.Timestamp.Local().Format(time.Kitchen), m.Username, m.Content)
		if m.Username == self {
			return nil
		}
		ack := model.AckRequest{MessageID: m.ID}
		delivered, _ := model.NewEnvelope(model.EventDelivered, ack)
		read, _ := model.NewEnvelope(model.EventRead, ack)
		return []model.Envelope{delivered, read}
	}
	return nil
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	username := flag.String("user", "user1", "display name")
	debug := flag.Bool("debug", false, "log every frame")
	flag.Parse()

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.WithField("url", u.String()).Info("Connecting")

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer c.Close()

	if err := send(c, model.EventLogin, model.LoginRequest{Username: *username}); err != nil {
		log.WithError(err).Fatal("login")
	}

	// Acks go through the writer goroutine: gorilla allows one writer.
	outbound := make(chan model.Envelope, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var env model.Envelope
			if err := c.ReadJSON(&env); err != nil {
				log.WithError(err).Info("read")
				return
			}
			log.WithField("event", env.Event).Debug("Frame received")
			for _, ack := range render(env, *username) {
				outbound <- ack
			}
			fmt.Print("> ")
		}
	}()

	lines := make(chan string)
	go func(lines chan<- string) {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}(lines)
	input := (<-chan string)(lines)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	typing := false
	for {
		var err error
		select {
		case <-done:
			return
		case env := <-outbound:
			err = c.WriteJSON(env)
		case text, ok := <-input:
			switch {
			case !ok || text == "/quit":
				input = nil
				interrupt <- os.Interrupt
			case text == "":
				fmt.Print("> ")
			case text == "/typing":
				typing = !typing
				event := model.EventTypingStop
				if typing {
					event = model.EventTypingStart
				}
				err = send(c, event, nil)
			case text == "/ping":
				err = send(c, model.EventPing, nil)
			default:
				if typing {
					typing = false
					send(c, model.EventTypingStop, nil)
				}
				err = send(c, model.EventSend, model.SendRequest{Content: text, Timestamp: time.Now().UTC()})
			}
		case <-interrupt:
			log.Info("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.WithError(err).Warn("write close")
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
		if err != nil {
			log.WithError(err).Error("write")
			return
		}
	}
}
