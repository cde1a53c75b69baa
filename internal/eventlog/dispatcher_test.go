package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	batches map[string][]kafka.Message
	err     error
}

func (w *recordingWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if w.batches == nil {
		w.batches = make(map[string][]kafka.Message)
	}
	w.batches[topic] = append(w.batches[topic], msgs...)
	return nil
}

func TestDeliverGroupsByTopicAndSetsHeaders(t *testing.T) {
	writer := &recordingWriter{}
	d := NewDispatcher(nil, writer, time.Second, 10)

	messages := []Message{
		{
			EventID:      "evt-1",
			EventType:    EventActivityRecorded,
			Topic:        TopicActivityRecorded,
			PartitionKey: "user-1",
			Payload:      json.RawMessage(`{"log_id":1001}`),
		},
		{
			EventID:      "evt-2",
			EventType:    EventNotificationSent,
			Topic:        TopicNotificationSent,
			PartitionKey: "user-1",
			Payload:      json.RawMessage(`{"kind":"activity"}`),
		},
		{
			EventID:      "evt-3",
			EventType:    EventActivityRecorded,
			Topic:        TopicActivityRecorded,
			PartitionKey: "user-2",
			Payload:      json.RawMessage(`{"log_id":1002}`),
		},
	}

	require.NoError(t, d.deliver(context.Background(), messages))
	require.Len(t, writer.batches[TopicActivityRecorded], 2)
	require.Len(t, writer.batches[TopicNotificationSent], 1)

	first := writer.batches[TopicActivityRecorded][0]
	require.Equal(t, []byte("user-1"), first.Key)
	require.JSONEq(t, `{"log_id":1001}`, string(first.Value))

	headers := make(map[string]string)
	for _, h := range first.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, EventActivityRecorded, headers["event_type"])
	require.Equal(t, "evt-1", headers["event_id"])
}
