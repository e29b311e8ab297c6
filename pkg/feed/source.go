package feed

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/internal/config"
	"changefeed-gateway/pkg/kafka"
	"changefeed-gateway/pkg/mongofeed"
	"changefeed-gateway/pkg/postgres"
	"changefeed-gateway/pkg/redisfeed"
)

// NewSource picks the upstream implementation from the feed URL scheme.
func NewSource(cfg config.FeedConfig, logger *logrus.Logger) (Source, error) {
	scheme, rest, ok := strings.Cut(cfg.URL, "://")
	if !ok {
		return nil, fmt.Errorf("feed url %q has no scheme", Redact(cfg.URL))
	}

	switch strings.ToLower(scheme) {
	case "kafka", "redpanda":
		brokers, topic, err := parseKafkaTarget(rest, cfg.Topic)
		if err != nil {
			return nil, err
		}
		return kafka.NewHandler(brokers, topic, logger), nil

	case "mongodb", "mongodb+srv":
		return mongofeed.NewWatcher(cfg.URL, logger), nil

	case "postgres", "postgresql":
		return postgres.NewListener(cfg.URL, cfg.Channel, logger), nil

	case "redis", "rediss":
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis feed url: %w", err)
		}
		return redisfeed.NewSubscriber(redis.NewClient(opts), cfg.Channel, logger), nil

	default:
		return nil, fmt.Errorf("unsupported feed scheme %q", scheme)
	}
}

// parseKafkaTarget splits "host:port[,host:port]/topic". The topic from the
// path wins over the configured one.
func parseKafkaTarget(rest, fallbackTopic string) ([]string, string, error) {
	hosts, topic, _ := strings.Cut(rest, "/")
	if i := strings.IndexByte(topic, '?'); i >= 0 {
		topic = topic[:i]
	}
	if topic == "" {
		topic = fallbackTopic
	}

	var brokers []string
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			brokers = append(brokers, h)
		}
	}

	if len(brokers) == 0 {
		return nil, "", fmt.Errorf("kafka feed url has no brokers")
	}
	if topic == "" {
		return nil, "", fmt.Errorf("kafka feed url has no topic")
	}
	return brokers, topic, nil
}

// Redact strips credentials from a connection string before it is logged.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
