package main

import (
	"context"
	"encoding/json"
	"flag"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/pkg/kafka"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated broker addresses")
	topic := flag.String("topic", "db-changes", "change topic")
	data := flag.String("data", "", "change event JSON (defaults to a sample insert)")
	flag.Parse()

	log := logrus.New()

	payload := []byte(*data)
	if *data == "" {
		payload = sampleEvent()
	}
	if !json.Valid(payload) {
		log.Fatal("-data is not valid JSON")
	}

	producer, err := kafka.NewProducer(strings.Split(*brokers, ","))
	if err != nil {
		log.WithError(err).Fatal("failed to create producer")
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := kafka.Publish(ctx, producer, *topic, []byte(uuid.NewString()), payload); err != nil {
		log.WithError(err).Fatal("failed to publish change event")
	}
	log.WithField("topic", *topic).Info("change event published")
}

func sampleEvent() []byte {
	id := uuid.NewString()
	evt := map[string]interface{}{
		"operationType": "insert",
		"ns":            map[string]string{"coll": "samples"},
		"documentKey":   map[string]string{"_id": id},
		"fullDocument": map[string]interface{}{
			"_id":       id,
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		},
	}
	data, _ := json.Marshal(evt)
	return data
}
