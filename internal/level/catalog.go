package level

import (
	"fmt"
	"sort"
)

// Catalog is the set of levels available to a session, ordered by name,
// with a cursor on the current one. It is not safe for concurrent use;
// hosts that share one must guard it.
type Catalog struct {
	levels  []*Level
	current int
}

// NewCatalog builds a catalog from the given levels. Later levels replace
// earlier ones with the same name. An empty input yields DefaultCatalog.
func NewCatalog(levels ...*Level) *Catalog {
	c := &Catalog{}
	for _, l := range levels {
		if l != nil {
			c.Put(l)
		}
	}
	if len(c.levels) == 0 {
		return DefaultCatalog()
	}
	c.current = 0
	return c
}

// DefaultCatalog holds only the 10x10 gradient fallback level.
func DefaultCatalog() *Catalog {
	return &Catalog{levels: []*Level{Default()}}
}

// Len returns the number of levels.
func (c *Catalog) Len() int { return len(c.levels) }

// Current returns the active level.
func (c *Catalog) Current() *Level { return c.levels[c.current] }

// CurrentIndex returns the position of the active level.
func (c *Catalog) CurrentIndex() int { return c.current }

// Next advances to the following level, wrapping past the end.
func (c *Catalog) Next() *Level {
	c.current = (c.current + 1) % len(c.levels)
	return c.Current()
}

// Prev steps back to the preceding level, wrapping past the start.
func (c *Catalog) Prev() *Level {
	c.current = (c.current - 1 + len(c.levels)) % len(c.levels)
	return c.Current()
}

// Get returns the level with the given name.
func (c *Catalog) Get(name string) (*Level, bool) {
	i, ok := c.find(name)
	if !ok {
		return nil, false
	}
	return c.levels[i], true
}

// Select makes the named level current.
func (c *Catalog) Select(name string) error {
	i, ok := c.find(name)
	if !ok {
		return fmt.Errorf("no level named %q", name)
	}
	c.current = i
	return nil
}

// Put inserts a level, replacing any level with the same name. The current
// level stays current.
func (c *Catalog) Put(l *Level) {
	var currentName string
	if len(c.levels) > 0 {
		currentName = c.Current().Name()
	}

	if i, ok := c.find(l.Name()); ok {
		c.levels[i] = l
		return
	}

	c.levels = append(c.levels, l)
	sort.SliceStable(c.levels, func(i, j int) bool {
		return c.levels[i].Name() < c.levels[j].Name()
	})
	if currentName != "" {
		c.current, _ = c.find(currentName)
	}
}

// Names returns level names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.levels))
	for i, l := range c.levels {
		names[i] = l.Name()
	}
	return names
}

// Levels returns the levels in catalog order.
func (c *Catalog) Levels() []*Level {
	return append([]*Level(nil), c.levels...)
}

func (c *Catalog) find(name string) (int, bool) {
	i := sort.Search(len(c.levels), func(i int) bool {
		return c.levels[i].Name() >= name
	})
	return i, i < len(c.levels) && c.levels[i].Name() == name
}
