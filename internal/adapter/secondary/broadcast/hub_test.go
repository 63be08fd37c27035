package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"volume-watcher/internal/domain"
)

func TestHubFansOut(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe()

	hub.Broadcast(domain.LifecycleStarted)
	hub.Broadcast(domain.LifecycleStopped)

	assert.Equal(t, domain.LifecycleStarted, <-ch)
	assert.Equal(t, domain.LifecycleStopped, <-ch)
	assert.Equal(t, domain.LifecycleStopped, hub.Last())

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	hub.Broadcast(domain.LifecycleStarted)
}
