package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_CreatesLogDir(t *testing.T) {
	root := t.TempDir()
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	l, err := New(root, false, "debug")
	require.NoError(t, err)
	require.NotNil(t, l)

	info, err := os.Stat(filepath.Join(root, "logs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := zap.New(core).Sugar()

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Infow("hello", "k", "v")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].Message)

	assert.NotNil(t, FromContext(context.Background()))
}
