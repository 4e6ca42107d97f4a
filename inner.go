package rasterpipe

import (
	"github.com/Skryldev/rasterpipe/cache"
	"github.com/Skryldev/rasterpipe/core"
)

// Registry exposes the codec registry for advanced use (e.g., registering a
// decoder after construction in tests).  Prefer WithDecoder.
func (c *Coordinator) Registry() *core.DefaultRegistry { return c.reg }

// Cache exposes the frame cache.  Entries are shared read-only rasters.
func (c *Coordinator) Cache() *cache.Cache { return c.store }
