package docker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	assert.Nil(t, parsePlatform(""))

	p := parsePlatform("linux/arm64/v8")
	require.NotNil(t, p)
	assert.Equal(t, "linux", p.OS)
	assert.Equal(t, "arm64", p.Architecture)
	assert.Equal(t, "v8", p.Variant)
}

func TestTruncateTail(t *testing.T) {
	assert.Equal(t, "abc", truncateTail("abc", 10))
	assert.Equal(t, "...(truncated)...\nde", truncateTail("abcde", 2))
	assert.Equal(t, "", truncateTail("abc", 0))
}

// 需要本地 Docker daemon，设置 PAPERAGENT_TEST_DOCKER=1 时运行
func TestRunOnce(t *testing.T) {
	if os.Getenv("PAPERAGENT_TEST_DOCKER") == "" {
		t.Skip("PAPERAGENT_TEST_DOCKER not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, EnsureImage(ctx, PullImageOptions{Ref: "alpine:3.20"}))
	res, err := RunOnce(ctx, RunOptions{
		Image:          "alpine:3.20",
		Cmd:            []string{"sh", "-c", "echo hello; echo oops >&2; exit 3"},
		DisableNetwork: true,
		Timeout:        30 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ExitCode)
	assert.Contains(t, res.Stdout, "hello")
	assert.Contains(t, res.Stderr, "oops")
}
