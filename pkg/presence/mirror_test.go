package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopMirror(t *testing.T) {
	var m Mirror = Noop{}
	ctx := context.Background()
	assert.NoError(t, m.Reset(ctx))
	assert.NoError(t, m.Online(ctx, "alice"))
	assert.NoError(t, m.Offline(ctx, "alice"))
	assert.NoError(t, m.Close())
}

func TestNewRedisMirrorDefaultsKey(t *testing.T) {
	m := NewRedisMirror("localhost:6379", "")
	defer m.Close()
	assert.Equal(t, DefaultKey, m.key)
}
