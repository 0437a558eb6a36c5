package handlers

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/infotafel/internal/display"
)

const maxMarkdownSize = 20000

// SetTextPanel returns a handler that rewrites the text panel and can switch
// the layout to it.
func SetTextPanel(g Gallery) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		title, hasTitle := args["title"].(string)
		markdown, hasMarkdown := args["markdown"].(string)
		if !hasTitle && !hasMarkdown {
			return mcp.NewToolResultError("title or markdown is required"), nil
		}
		if len(markdown) > maxMarkdownSize {
			return mcp.NewToolResultError(fmt.Sprintf("markdown exceeds %d bytes", maxMarkdownSize)), nil
		}

		cfg, err := g.MutateConfig(func(cfg *display.Config) error {
			if hasTitle {
				cfg.TextPanel.Title = title
			}
			if hasMarkdown {
				cfg.TextPanel.Markdown = markdown
			}
			if show, ok := args["show"].(bool); ok {
				if show {
					cfg.Layout.Mode = "text"
				} else {
					cfg.Layout.Mode = "carousel"
				}
			}
			return nil
		})
		if err != nil {
			return mcp.NewToolResultError(toolError(err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("✅ Text panel %q saved (layout: %s)", cfg.TextPanel.Title, cfg.Layout.Mode)), nil
	}
}
