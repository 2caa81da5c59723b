// Package tools defines the tool surface exposed to the model and the
// safety-gated validation and execution of requested tool calls.
package tools

import "context"

// Tool is an action the model may request. Execute never returns an error:
// every failure is captured in the result map so the conversation loop always
// has a result object to feed back to the model.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON-schema-shaped parameter description.
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) map[string]interface{}
}

// Catalog holds the registered tools, preserving registration order for
// request rendering.
type Catalog struct {
	order []string
	tools map[string]Tool
}

// NewCatalog creates a catalog containing the given tools.
func NewCatalog(ts ...Tool) *Catalog {
	c := &Catalog{tools: make(map[string]Tool)}
	for _, t := range ts {
		c.Register(t)
	}
	return c
}

// Register adds a tool. Re-registering a name replaces the tool in place.
func (c *Catalog) Register(t Tool) {
	if _, ok := c.tools[t.Name()]; !ok {
		c.order = append(c.order, t.Name())
	}
	c.tools[t.Name()] = t
}

// Get returns the tool for name.
func (c *Catalog) Get(name string) (Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// All returns the tools in registration order.
func (c *Catalog) All() []Tool {
	out := make([]Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name])
	}
	return out
}
