package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("BUCKET_NAME", "pulse-videos")

	cfg, err := Load("video-api")
	require.NoError(t, err)

	assert.Equal(t, "video-api", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, "postgres", cfg.Metadata.Backend)
	assert.Equal(t, "gs", cfg.ObjectStore.Scheme)
	assert.Equal(t, 180*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, "LIKELY", cfg.Classifier.Threshold)
	assert.Equal(t, 60*time.Minute, cfg.Upload.SignedURLTTL)
	assert.Equal(t, "memory", cfg.Queue.Type)
}

func TestLoad_KafkaBrokersSplitOnComma(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("BUCKET_NAME", "pulse-videos")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load("video-api")
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Queue.Brokers)
}

func TestLoad_RejectsZeroPollInterval(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("BUCKET_NAME", "pulse-videos")
	t.Setenv("CLASSIFIER_POLL_INITIAL", "0s")

	_, err := Load("video-api")
	assert.Error(t, err)
}

func testClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Timeout:        time.Minute,
		PollInitial:    time.Second,
		PollMax:        5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Service:     ServiceConfig{Port: 8080},
			Database:    DatabaseConfig{Host: "localhost", MaxConns: 4, MinConns: 1},
			Metadata:    MetadataConfig{Backend: "postgres"},
			ObjectStore: ObjectStoreConfig{Backend: "minio", Endpoint: "minio:9000", Bucket: "b", Scheme: "s3"},
			Classifier:  testClassifierConfig(),
			Cleanup:     CleanupConfig{DeleteTimeout: time.Second, MaxAttempts: 3},
			Auth:        AuthConfig{Mode: "jwt", JWTSecret: "s"},
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"bad port":            func(c *Config) { c.Service.Port = 0 },
		"missing bucket":      func(c *Config) { c.ObjectStore.Bucket = "" },
		"unknown metadata":    func(c *Config) { c.Metadata.Backend = "dynamo" },
		"jwt without secret":  func(c *Config) { c.Auth.JWTSecret = "" },
		"unknown auth mode":   func(c *Config) { c.Auth.Mode = "basic" },
		"ratelimit w/o redis": func(c *Config) { c.RateLimit.Enabled = true },
		"zero classifier ttl": func(c *Config) { c.Classifier.Timeout = 0 },
		"empty scheme":        func(c *Config) { c.ObjectStore.Scheme = "" },
		"zero poll interval":  func(c *Config) { c.Classifier.PollInitial = 0 },
		"poll max below min":  func(c *Config) { c.Classifier.PollMax = time.Millisecond },
		"zero request ttl":    func(c *Config) { c.Classifier.RequestTimeout = 0 },
		"zero delete timeout": func(c *Config) { c.Cleanup.DeleteTimeout = 0 },
		"no cleanup attempts": func(c *Config) { c.Cleanup.MaxAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MemoryObjectStoreDefaultsBucket(t *testing.T) {
	cfg := &Config{
		Service:     ServiceConfig{Port: 8080},
		Metadata:    MetadataConfig{Backend: "memory"},
		ObjectStore: ObjectStoreConfig{Backend: "memory", Scheme: "mem"},
		Classifier:  testClassifierConfig(),
		Cleanup:     CleanupConfig{DeleteTimeout: time.Second, MaxAttempts: 1},
		Auth:        AuthConfig{Mode: "header"},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "local", cfg.ObjectStore.Bucket)
}

func TestUploadWriteTimeout_CoversFailurePath(t *testing.T) {
	cfg := &Config{
		Classifier: ClassifierConfig{Timeout: 3 * time.Minute, RequestTimeout: 30 * time.Second},
		Cleanup:    CleanupConfig{DeleteTimeout: 10 * time.Second},
	}

	// timeout, then the detached cancel, then the inline blob delete
	failurePath := cfg.Classifier.Timeout + cfg.Classifier.RequestTimeout + cfg.Cleanup.DeleteTimeout
	assert.Greater(t, cfg.UploadWriteTimeout(), failurePath)
}
