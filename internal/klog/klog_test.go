package klog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, logiface.LevelTrace)

	l.Info().Str("thread", "main").Int("priority", 31).Log("context switch")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.True(t, strings.Contains(out, `"thread":"main"`))
	assert.True(t, strings.Contains(out, `"msg":"context switch"`))
}

func TestEvictionWarningRateLimited(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, logiface.LevelTrace)

	allowed := 0
	for i := 0; i < 50; i++ {
		if b := l.EvictionWarning(); b != nil {
			b.Log("evicting frame")
			allowed++
		}
	}
	assert.Less(t, allowed, 50)
}
