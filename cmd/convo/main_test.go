package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/comigor/convo-go/internal/config"
	"github.com/comigor/convo-go/internal/conversation"
)

// fakeServer answers like the conversation API, numbering messageIds per call.
type fakeServer struct {
	mu       sync.Mutex
	requests []conversation.Request
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req conversation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"response":       "echo: " + req.Message,
		"conversationId": req.ConversationID,
		"messageId":      fmt.Sprintf("M%d", n),
		"details":        map[string]any{"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 2}},
	})
}

func hostPort(t *testing.T, rawURL string) (string, string) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	return host, port
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_DefaultRequest(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	out, err := run(t, "--host", host, "--port", port)
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	require.Equal(t, conversation.Request{
		Message:         config.DefaultMessage,
		ConversationID:  config.DefaultConversationID,
		ParentMessageID: config.DefaultParentMessageID,
	}, fake.requests[0])
	require.Equal(t, "response: echo: "+config.DefaultMessage+"\n"+
		"conversationId: "+config.DefaultConversationID+"\n"+
		"messageId: M1\n", out)
}

func TestRoot_MessageArgument(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	_, err := run(t, "--host", host, "--port", port, "--conversation-id", "C1", "--parent-message-id", "P1", "hello there")
	require.NoError(t, err)
	require.Equal(t, conversation.Request{Message: "hello there", ConversationID: "C1", ParentMessageID: "P1"}, fake.requests[0])
}

func TestRoot_NonOKExitsNormally(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	out, err := run(t, "--host", host, "--port", port)
	require.NoError(t, err)
	require.Contains(t, out, "404")
	require.Contains(t, out, "not found")
}

func TestRoot_UnreachableFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	srv := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, srv.URL)
	srv.Close()

	_, err := run(t, "--host", host, "--port", port)
	require.ErrorIs(t, err, conversation.ErrTransport)
}

func TestRoot_NewConversation(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	_, err := run(t, "--host", host, "--port", port, "--new", "hi")
	require.NoError(t, err)

	got := fake.requests[0]
	_, perr := uuid.Parse(got.ConversationID)
	require.NoError(t, perr)
	require.NotEqual(t, config.DefaultConversationID, got.ConversationID)
	require.Empty(t, got.ParentMessageID)
}

func TestRoot_ContinueThreadsLastMessage(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	host, port := hostPort(t, srv.URL)
	db := filepath.Join(t.TempDir(), "history.db")

	_, err := run(t, "--host", host, "--port", port, "--history", "--history-path", db, "--conversation-id", "C1", "first")
	require.NoError(t, err)
	_, err = run(t, "--host", host, "--port", port, "--continue", "--history-path", db, "--conversation-id", "C1", "second")
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	require.Equal(t, "M1", fake.requests[1].ParentMessageID)

	out, err := run(t, "history", "--history-path", db, "C1")
	require.NoError(t, err)
	require.Contains(t, out, "messageId=M1")
	require.Contains(t, out, "parentMessageId=M1 messageId=M2")
	require.Contains(t, out, "message: second")
	require.Contains(t, out, "response: echo: second")
}

func TestRoot_ContinueWithoutHistoryFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	host, port := hostPort(t, srv.URL)
	db := filepath.Join(t.TempDir(), "history.db")

	_, err := run(t, "--host", host, "--port", port, "--continue", "--history-path", db, "--conversation-id", "C9")
	require.Error(t, err)
	require.Empty(t, fake.requests)
}

func TestRoot_NewAndContinueAreExclusive(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	_, err := run(t, "--new", "--continue")
	require.Error(t, err)
}

func TestHistory_Empty(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	out, err := run(t, "history", "--history-path", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.Equal(t, "no recorded exchanges\n", out)
}
