package feed

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"changefeed-gateway/internal/config"
)

func TestNewSourceDispatchesOnScheme(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		url  string
		name string
	}{
		{"kafka://localhost:9092/changes", "kafka"},
		{"redpanda://a:9092,b:9092/changes", "kafka"},
		{"postgres://gateway:pw@db:5432/app?sslmode=disable", "postgres"},
		{"postgresql://db/app", "postgres"},
		{"redis://localhost:6379/0", "redis"},
		{"mongodb://gateway:pw@localhost:27017/?replicaSet=rs0", "mongo"},
		{"mongodb+srv://cluster0.example.net/app", "mongo"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			src, err := NewSource(config.FeedConfig{URL: tt.url, Topic: "db-changes", Channel: "db_changes"}, logger)
			require.NoError(t, err)
			assert.Equal(t, tt.name, src.Name())
			_ = src.Close()
		})
	}
}

func TestNewSourceRejectsUnknownURLs(t *testing.T) {
	logger, _ := test.NewNullLogger()

	for _, raw := range []string{"", "localhost:9092", "mysql://localhost/app", "kafka:///changes"} {
		_, err := NewSource(config.FeedConfig{URL: raw, Topic: "db-changes"}, logger)
		assert.Error(t, err, raw)
	}
}

func TestParseKafkaTarget(t *testing.T) {
	brokers, topic, err := parseKafkaTarget("a:9092, b:9092/orders?x=1", "fallback")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers)
	assert.Equal(t, "orders", topic)

	_, topic, err = parseKafkaTarget("a:9092", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", topic)

	_, _, err = parseKafkaTarget("a:9092", "")
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://gateway:xxxxx@db/app", Redact("postgres://gateway:secret@db/app"))
	assert.Equal(t, "kafka://localhost:9092/changes", Redact("kafka://localhost:9092/changes"))
}
