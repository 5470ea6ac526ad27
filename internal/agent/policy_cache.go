package agent

import (
	"encoding/binary"
	"math"
	"sync"

	"rulevo/internal/scape"
)

// policyCache memoizes observation -> action for one individual. Environments
// may query a policy from several goroutines, hence the lock.
type policyCache struct {
	mu      sync.RWMutex
	actions map[string]scape.Action
}

func newPolicyCache() *policyCache {
	return &policyCache{actions: make(map[string]scape.Action)}
}

func (c *policyCache) get(key string) (scape.Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	action, ok := c.actions[key]
	return action, ok
}

func (c *policyCache) put(key string, action scape.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.actions[key] = action
}

func (c *policyCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.actions)
}

func observationKey(obs scape.Observation) string {
	buf := make([]byte, 0, 8*len(obs))
	for _, v := range obs {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return string(buf)
}
