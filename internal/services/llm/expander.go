package llm

import (
	"context"

	"storyforge/internal/expand"
)

// Expand implements expand.Provider.
func (c *Client) Expand(ctx context.Context, req expand.Request) (expand.Result, error) {
	system, user := expand.BuildPrompts(req)
	content, err := c.CompleteJSON(ctx, system, user)
	if err != nil {
		return expand.Result{}, err
	}
	return expand.ParseResult(ExtractJSON(content))
}

var _ expand.Provider = (*Client)(nil)
