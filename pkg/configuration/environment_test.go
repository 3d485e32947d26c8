package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ORGTREE_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "org")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("ORGTREE_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("ORGTREE_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ORGTREE_TEST_ENV_LOAD"))
}

func TestConfiguration_Defaults(t *testing.T) {
	c := &Configuration{}
	require.NoError(t, env.Parse(c))
	require.NoError(t, c.finalize())

	require.Equal(t, "memory", c.Org.SnapshotCache)
	require.Equal(t, 5*time.Minute, c.Org.SnapshotTTL)
	require.Equal(t, 1000, c.Org.PropagationBatchSize)
	require.Equal(t, 10, c.PageSize)
	require.Equal(t, 100, c.MaxPageSize)
	require.Contains(t, c.Database.Opts, "dbname=orgtree")
	require.False(t, c.RateLimit.Enabled)
	require.Equal(t, []string{"http://localhost:3000"}, c.CORSAllowedOrigins)
	require.NotNil(t, c.Logger())
}

func TestOrgOptions_Validate(t *testing.T) {
	ok := OrgOptions{SnapshotCache: "redis", SnapshotTTL: time.Second, PropagationBatchSize: 1}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.SnapshotCache = "memcached"
	require.Error(t, bad.Validate())

	bad = ok
	bad.SnapshotTTL = 0
	require.Error(t, bad.Validate())

	bad = ok
	bad.PropagationBatchSize = 0
	require.Error(t, bad.Validate())
}

func TestLogrusLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"silent":  logrus.PanicLevel,
		"error":   logrus.ErrorLevel,
		"warn":    logrus.WarnLevel,
		"info":    logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		"unknown": logrus.ErrorLevel,
	}
	for in, want := range cases {
		c := &Configuration{LogLevel: in}
		require.Equal(t, want, c.LogrusLogLevel(), in)
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRateLimitOptions_Validate(t *testing.T) {
	ok := RateLimitOptions{GlobalRPS: 100, Storage: "memory"}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.GlobalRPS = -1
	require.Error(t, bad.Validate())

	bad = ok
	bad.Storage = "memcached"
	require.Error(t, bad.Validate())
}
