package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/pkg/auth"
)

func main() {
	secret := flag.String("secret", os.Getenv("AUTH_SECRET"), "shared secret used to sign the credential")
	target := flag.String("url", "ws://localhost:8080/ws", "gateway websocket URL")
	generate := flag.Bool("generate-secret", false, "print a new random secret and exit")
	flag.Parse()

	log := logrus.New()

	if *generate {
		s, err := auth.GenerateSecret()
		if err != nil {
			log.WithError(err).Fatal("failed to generate secret")
		}
		fmt.Println(s)
		return
	}

	if *secret == "" {
		log.Fatal("Please provide the shared secret using -secret or AUTH_SECRET")
	}

	u, err := url.Parse(*target)
	if err != nil {
		log.WithError(err).Fatal("invalid url")
	}
	cred := auth.NewCredential([]byte(*secret), time.Now())
	q := u.Query()
	q.Set(auth.TokenParam, cred.Token)
	q.Set(auth.TimestampParam, cred.Timestamp)
	u.RawQuery = q.Encode()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	log.WithField("url", *target).Info("connecting")
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.WithError(err).WithField("status", resp.Status).Fatal("admission refused")
		}
		log.WithError(err).Fatal("dial failed")
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.WithError(err).Error("read error")
				}
				return
			}
			fmt.Printf("%s\n", message)
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Info("interrupt")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.WithError(err).Error("write close")
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
