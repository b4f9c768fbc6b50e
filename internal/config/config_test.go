package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupnotify/internal/domain/dispatch"
)

const sampleConfig = `
server:
  port: 9000
secret:
  plugin_guid: 12
  site_secret: s3cr3t
  installed_at: 1700000000
registry:
  entities:
    - type: object
      subtype: blog
      subject: New blog post
    - type: object
      subtype: groupforumtopic
      subject: New discussion topic
dispatch:
  methods: [email, site]
`

func loadFile(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := loadFile(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "queue", cfg.Launcher.Mode)
	assert.Equal(t, "256M", cfg.Worker.MemoryLimit)
	assert.Equal(t, "session:", cfg.Redis.SessionPrefix)
	assert.Equal(t, []string{"email", "site"}, cfg.Dispatch.Methods)
	assert.Equal(t, dispatch.DefaultAnnotationKinds, cfg.Registry.Annotations)
	assert.Equal(t, []dispatch.RegisteredType{
		{Type: "object", Subtype: "blog", Subject: "New blog post"},
		{Type: "object", Subtype: "groupforumtopic", Subject: "New discussion topic"},
	}, cfg.Registry.Entities)

	assert.Equal(t, dispatch.SecretSource{PluginGUID: 12, SiteSecret: "s3cr3t", InstalledAt: 1700000000}, cfg.Secret.SecretSource())
	assert.Equal(t, float64(6*3600), cfg.Queue.TaskTimeout().Seconds())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GROUPNOTIFY_LAUNCHER_MODE", "process")
	t.Setenv("GROUPNOTIFY_AUTH_API_KEYS", "one, two,,three")
	t.Setenv("GROUPNOTIFY_REGISTRY_ANNOTATIONS", "group_topic_post,generic_comment")

	cfg, err := loadFile(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "process", cfg.Launcher.Mode)
	assert.Equal(t, []string{"one", "two", "three"}, cfg.Auth.APIKeys)
	assert.Equal(t, []string{"group_topic_post", "generic_comment"}, cfg.Registry.Annotations)
}

func TestLoad_Validation(t *testing.T) {
	_, err := loadFile(t, "server:\n  port: 1\n")
	assert.ErrorContains(t, err, "site_secret")

	_, err = loadFile(t, sampleConfig+"store:\n  driver: mysql\n")
	assert.ErrorContains(t, err, "store driver")

	_, err = loadFile(t, sampleConfig+"launcher:\n  mode: cron\n")
	assert.ErrorContains(t, err, "launcher mode")
}
