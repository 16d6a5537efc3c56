package services

import (
	"net/http"
	"testing"
	"time"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	sent chan *apns2.Notification
}

func (f *fakePusher) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.sent <- n
	return &apns2.Response{StatusCode: http.StatusOK}, nil
}

func TestPushNotifierSendsWarningsToEveryDevice(t *testing.T) {
	pusher := &fakePusher{sent: make(chan *apns2.Notification, 4)}
	n := NewPushNotifierWithClient(pusher, "com.example.lovealbum", []string{"device-a", "device-b"})

	n.Notify(LevelWarning, "Saved on this device only")

	devices := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case sent := <-pusher.sent:
			assert.Equal(t, "com.example.lovealbum", sent.Topic)
			devices[sent.DeviceToken] = true
		case <-time.After(2 * time.Second):
			require.FailNow(t, "push not sent")
		}
	}
	assert.Equal(t, map[string]bool{"device-a": true, "device-b": true}, devices)
}

func TestPushNotifierSkipsInfo(t *testing.T) {
	pusher := &fakePusher{sent: make(chan *apns2.Notification, 1)}
	n := NewPushNotifierWithClient(pusher, "topic", []string{"device-a"})

	n.Notify(LevelInfo, "Focus finished")
	n.Notify(LevelSuccess, "Synced")

	select {
	case <-pusher.sent:
		t.Fatal("info and success must not be pushed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMultiNotifierFansOut(t *testing.T) {
	first, second := &recordingNotifier{}, &recordingNotifier{}
	MultiNotifier{first, nil, second}.Notify(LevelError, "boom")

	assert.True(t, first.contains("error: boom"))
	assert.True(t, second.contains("error: boom"))
}
