package handlers

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/infotafel/internal/display"
)

const maxTickerItems = 50

// UpdateTicker returns a handler that replaces the ticker lines.
func UpdateTicker(g Gallery) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		items, ok := stringSlice(args["items"])
		if !ok {
			return mcp.NewToolResultError("items must be a list of strings"), nil
		}
		if len(items) > maxTickerItems {
			return mcp.NewToolResultError(fmt.Sprintf("at most %d ticker items are allowed", maxTickerItems)), nil
		}

		cfg, err := g.MutateConfig(func(cfg *display.Config) error {
			cfg.Ticker.Items = items
			if enabled, ok := args["enabled"].(bool); ok {
				cfg.Ticker.Enabled = enabled
			}
			if speed, ok := args["speed"].(float64); ok {
				if speed < 10 || speed > 500 {
					return fmt.Errorf("speed must be between 10 and 500 px/s")
				}
				cfg.Ticker.Speed = int(speed)
			}
			return nil
		})
		if err != nil {
			return mcp.NewToolResultError(toolError(err)), nil
		}

		state := "on"
		if !cfg.Ticker.Enabled {
			state = "off"
		}
		return mcp.NewToolResultText(fmt.Sprintf("✅ Ticker updated: %d items, %s, %d px/s", len(cfg.Ticker.Items), state, cfg.Ticker.Speed)), nil
	}
}
