// tools.go resolves helper-tool names to absolute paths.
// Only allowlisted tools can be run, and each lookup is cached so repeated
// intent launches do not walk $PATH every time.
package executor

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// DefaultTools is the allowlist used by New.
var DefaultTools = []string{"am", "cmd", "getprop"}

// ToolCache caches tool paths for an allowlist.
type ToolCache struct {
	allowed []string

	mu    sync.RWMutex
	cache map[string]string
}

// NewToolCache creates a cache that only resolves the given tools.
func NewToolCache(allowed ...string) *ToolCache {
	return &ToolCache{
		allowed: allowed,
		cache:   make(map[string]string),
	}
}

// Lookup returns the absolute path of tool. It fails if tool is not
// allowlisted or cannot be found in $PATH.
func (c *ToolCache) Lookup(tool string) (string, error) {
	if !c.isAllowed(tool) {
		return "", fmt.Errorf("tool not allowed: %s (allowed: %s)", tool, strings.Join(c.allowed, ", "))
	}

	c.mu.RLock()
	if path, ok := c.cache[tool]; ok {
		c.mu.RUnlock()
		return path, nil
	}
	c.mu.RUnlock()

	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("tool '%s' not found in PATH: %w", tool, err)
	}

	c.mu.Lock()
	c.cache[tool] = path
	c.mu.Unlock()

	return path, nil
}

func (c *ToolCache) isAllowed(tool string) bool {
	for _, a := range c.allowed {
		if tool == a {
			return true
		}
	}
	return false
}
