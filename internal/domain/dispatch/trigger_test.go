package dispatch_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupnotify/internal/domain/dispatch"
)

func testSecret() *dispatch.Secret {
	return dispatch.NewSecret(dispatch.SecretSource{PluginGUID: 12, SiteSecret: "s3cr3t", InstalledAt: 1700000000})
}

func TestTrigger_RequestDefaultsAndOverrides(t *testing.T) {
	secret := testSecret()
	tr := dispatch.NewTrigger(secret, &recordingLauncher{}, "256M")
	rc := dispatch.RequestContext{Host: "example.org", HTTPS: "on", SessionID: "abc"}

	q := tr.Request(rc, dispatch.EntityOverrides("create", blogGUID, userOne))
	assert.Equal(t, secret.Generate(), q.Get(dispatch.KeySecret))
	assert.Equal(t, "example.org", q.Get(dispatch.KeyHost))
	assert.Equal(t, "256M", q.Get(dispatch.KeyMemoryLimit))
	assert.Equal(t, "abc", q.Get(dispatch.KeySessionID))
	assert.Equal(t, "on", q.Get(dispatch.KeyHTTPS))
	assert.Equal(t, "create", q.Get(dispatch.KeyEvent))
	assert.Equal(t, "500", q.Get(dispatch.KeyGUID))
	assert.Equal(t, "1", q.Get(dispatch.KeyActorGUID))

	overridden := tr.Request(rc, url.Values{dispatch.KeyMemoryLimit: {"1G"}})
	assert.Equal(t, "1G", overridden.Get(dispatch.KeyMemoryLimit), "caller values win")

	plain := tr.Request(dispatch.RequestContext{Host: "example.org"}, nil)
	assert.False(t, plain.Has(dispatch.KeyHTTPS))
}

func TestTrigger_StartLaunchesEncodedRequest(t *testing.T) {
	launcher := &recordingLauncher{}
	tr := dispatch.NewTrigger(testSecret(), launcher, "256M")

	tr.Start(context.Background(), dispatch.RequestContext{Host: "example.org"}, dispatch.AnnotationOverrides("create", replyID))
	require.Len(t, launcher.queries, 1)

	req, err := dispatch.ParseWorkerRequest(launcher.queries[0])
	require.NoError(t, err)
	assert.Equal(t, replyID, req.AnnotationID)
	assert.Equal(t, "create", req.Event)
	assert.Zero(t, req.EntityGUID)
}

func TestTrigger_StartIgnoresLaunchFailure(t *testing.T) {
	launcher := &recordingLauncher{err: errors.New("redis down")}
	tr := dispatch.NewTrigger(testSecret(), launcher, "")

	assert.NotPanics(t, func() {
		tr.Start(context.Background(), dispatch.RequestContext{}, dispatch.EntityOverrides("create", blogGUID, 0))
	})
	assert.Len(t, launcher.queries, 1)
}

func TestParseWorkerRequest(t *testing.T) {
	req, err := dispatch.ParseWorkerRequest("secret=x&host=example.org&https=on&event=create&guid=500&actor_guid=1&session_id=s&memory_limit=256M")
	require.NoError(t, err)
	assert.Equal(t, &dispatch.WorkerRequest{
		Secret:      "x",
		Host:        "example.org",
		MemoryLimit: "256M",
		SessionID:   "s",
		HTTPS:       true,
		Event:       "create",
		EntityGUID:  blogGUID,
		ActorGUID:   userOne,
	}, req)
	assert.Equal(t, "https://example.org", req.SiteURL())

	for _, off := range []string{"", "0", "off", "false"} {
		req, err := dispatch.ParseWorkerRequest("host=example.org&https=" + off)
		require.NoError(t, err)
		assert.False(t, req.HTTPS, off)
		assert.Equal(t, "http://example.org", req.SiteURL())
	}

	_, err = dispatch.ParseWorkerRequest("guid=abc")
	assert.Error(t, err)
	_, err = dispatch.ParseWorkerRequest("annotation_id=x")
	assert.Error(t, err)

	empty, err := dispatch.ParseWorkerRequest("")
	require.NoError(t, err)
	assert.Empty(t, empty.SiteURL())
}
