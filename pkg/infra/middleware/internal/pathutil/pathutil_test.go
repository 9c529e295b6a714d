package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPathMatcher(t *testing.T) {
	match := NewPathMatcher([]string{"/healthz", "/v1/chat"}, []string{"/debug/"})

	assert.True(t, match("/healthz"))
	assert.True(t, match("/v1/chat"))
	assert.True(t, match("/debug/pprof"))
	assert.False(t, match("/v1/chat/extra"))
	assert.False(t, match("/v1/feedback"))

	none := NewPathMatcher(nil, nil)
	assert.False(t, none("/healthz"))
}
