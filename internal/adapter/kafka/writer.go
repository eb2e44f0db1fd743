package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quakemap/internal/config"
	"github.com/couchcryptid/quakemap/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/zeebo/xxh3"
)

// Writer publishes the markers of each mounted scene to a Kafka topic.
// It implements render.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured marker topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishScene writes one message per marker in a single WriteMessages call.
func (w *Writer) PublishScene(ctx context.Context, scene domain.Scene) error {
	if len(scene.Markers) == 0 {
		return nil
	}
	msgs, err := sceneMessages(scene)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d markers: %w", len(msgs), err)
	}
	w.logger.Debug("markers published", "topic", w.writer.Topic, "count", len(msgs), "generation", scene.Generation)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// markerMessage is the wire form of one published marker.
type markerMessage struct {
	domain.Marker
	Window      domain.TimeWindow `json:"window"`
	Generation  uint64            `json:"generation"`
	GeneratedAt time.Time         `json:"generated_at"`
}

func sceneMessages(scene domain.Scene) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, len(scene.Markers))
	for i := range scene.Markers {
		msg, err := serializeToMessage(scene, scene.Markers[i])
		if err != nil {
			return nil, err
		}
		msgs[i] = msg
	}
	return msgs, nil
}

// serializeToMessage marshals a marker into a Kafka message keyed by event id.
func serializeToMessage(scene domain.Scene, m domain.Marker) (kafkago.Message, error) {
	data, err := json.Marshal(markerMessage{
		Marker:      m,
		Window:      scene.Window,
		Generation:  scene.Generation,
		GeneratedAt: scene.GeneratedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize marker: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(messageKey(m)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "window", Value: []byte(scene.Window)},
			{Key: "generation", Value: []byte(strconv.FormatUint(scene.Generation, 10))},
		},
	}, nil
}

// messageKey is the event id, or a content hash for features published without one.
func messageKey(m domain.Marker) string {
	if m.EventID != "" {
		return m.EventID
	}
	raw := strconv.FormatFloat(m.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(m.Lng, 'f', -1, 64) + "," + m.Title
	return fmt.Sprintf("anon-%016x", xxh3.HashString(raw))
}
