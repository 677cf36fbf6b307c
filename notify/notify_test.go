package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"mealchat/notify"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func TestWebhook_Notify(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr error
	}{
		{
			name: "success",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
			},
		},
		{
			name: "failure status",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(bytes.NewBufferString("bad request"))}, nil
			},
			wantErr: fmt.Errorf("failed to post message: 400 Bad Request"),
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: errors.New("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := notify.NewWebhook("http://example.com/webhook", "#mealchat", &mockDoer{doFunc: tt.doFunc})
			err := w.Notify(context.Background(), "Couldn't save your choice")
			should.Equal(t, tt.wantErr, err)
		})
	}
}

func TestWebhook_Payload(t *testing.T) {
	var got map[string]string
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		should.Equal(t, "application/json", req.Header.Get("Content-Type"))
		must.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
	}}

	must.NoError(t, notify.NewWebhook("http://example.com/webhook", "#meals", doer).Notify(context.Background(), "hi"))
	should.Equal(t, map[string]string{"channel": "#meals", "text": "hi"}, got)
}

type countingNotifier struct {
	calls chan string
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, message string) error {
	c.calls <- message
	return c.err
}

func TestMulti(t *testing.T) {
	a := &countingNotifier{calls: make(chan string, 1), err: errors.New("a down")}
	b := &countingNotifier{calls: make(chan string, 1)}

	err := notify.Multi{a, notify.Log{}, b}.Notify(context.Background(), "msg")
	should.ErrorContains(t, err, "a down")
	should.Equal(t, "msg", <-a.calls)
	should.Equal(t, "msg", <-b.calls)
}

func TestAsync(t *testing.T) {
	block := make(chan string)
	n := notify.Async(&countingNotifier{calls: block})

	ctx, cancel := context.WithCancel(context.Background())
	must.NoError(t, n.Notify(ctx, "later"))
	cancel()

	select {
	case msg := <-block:
		should.Equal(t, "later", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("async notification never delivered")
	}
}
