package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"potion_master/internal/broadcast"
	"potion_master/internal/logger"
	"potion_master/internal/models"
)

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{topic: topic, qos: qos, payload: payload})
	return nil
}

func (f *fakePublisher) sent() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.msgs...)
}

func TestForward_TopicAndPayload(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "bar/", 1, logger.Nop())

	ev := models.NewEvent(models.EventError, models.ErrorPayload{Message: "relay", Timestamp: 42})
	require.NoError(t, b.Forward(ev))

	msgs := pub.sent()
	require.Len(t, msgs, 1)
	require.Equal(t, "bar/error", msgs[0].topic)
	require.Equal(t, byte(1), msgs[0].qos)

	var decoded struct {
		Type string              `json:"type"`
		Data models.ErrorPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &decoded))
	require.Equal(t, "error", decoded.Type)
	require.Equal(t, "relay", decoded.Data.Message)
}

func TestForward_SkipsWeightUpdates(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "bar", 0, logger.Nop())
	require.NoError(t, b.Forward(models.NewEvent(models.EventWeightUpdate, models.WeightUpdate{})))
	require.Empty(t, pub.sent())
}

func TestForward_PropagatesPublishError(t *testing.T) {
	b := New(&fakePublisher{err: errors.New("offline")}, "bar", 0, logger.Nop())
	require.Error(t, b.Forward(models.NewEvent(models.EventHardwareStatus, models.HardwareStatus{})))
}

func TestRun_ForwardsHubEvents(t *testing.T) {
	pub := &fakePublisher{}
	hub := broadcast.NewHub(8, logger.Nop(), nil)
	b := New(pub, "bar", 0, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, hub)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, time.Millisecond)
	hub.Publish(models.EventPreparationComplete, models.PreparationResult{Success: true})
	hub.Publish(models.EventWeightUpdate, models.WeightUpdate{})
	hub.Publish(models.EventHardwareStatus, models.HardwareStatus{})

	require.Eventually(t, func() bool { return len(pub.sent()) == 2 }, 2*time.Second, time.Millisecond)
	msgs := pub.sent()
	require.Equal(t, "bar/preparation_complete", msgs[0].topic)
	require.Equal(t, "bar/hardware_status", msgs[1].topic)

	cancel()
	<-done
	require.Equal(t, 0, hub.Count())
}

func TestConnect_RequiresBroker(t *testing.T) {
	_, err := Connect(Settings{}, logger.Nop())
	require.Error(t, err)
}
