package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupnotify/internal/domain/dispatch"
	"groupnotify/internal/infra/email"
	"groupnotify/internal/infra/template"
)

func testMessage() *dispatch.Message {
	return &dispatch.Message{
		Event:    "create",
		Method:   email.Method,
		To:       &dispatch.Account{GUID: 3, Email: "three@example.com"},
		FromGUID: 100,
		Subject:  "New blog post",
		Body:     "New blog post: 500",
	}
}

func TestResendProvider_Send(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	engine, err := template.NewEngine()
	require.NoError(t, err)
	p := email.NewResendProvider("re_test", "noreply@example.org", "Groups", engine).WithEndpoint(srv.URL)

	id, err := p.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	assert.Equal(t, email.Method, p.Method())

	assert.Equal(t, "Groups <noreply@example.org>", payload["from"])
	assert.Equal(t, []any{"three@example.com"}, payload["to"])
	assert.Equal(t, "New blog post", payload["subject"])
	assert.Equal(t, "New blog post: 500", payload["text"])
	assert.Contains(t, payload["html"], "New blog post: 500")
}

func TestResendProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid to address","statusCode":422}`))
	}))
	defer srv.Close()

	p := email.NewResendProvider("k", "noreply@example.org", "", nil).WithEndpoint(srv.URL)
	_, err := p.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid to address")
}

func TestResendProvider_NoAddress(t *testing.T) {
	p := email.NewResendProvider("k", "noreply@example.org", "", nil)
	msg := testMessage()
	msg.To.Email = ""

	_, err := p.Send(context.Background(), msg)
	assert.Error(t, err)
}
