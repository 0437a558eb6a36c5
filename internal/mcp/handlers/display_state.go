package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GetDisplayState returns a handler that summarizes what the kiosk currently
// shows.
func GetDisplayState(g Gallery, displays Displays) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := g.Snapshot()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read display state: %s", err)), nil
		}
		cfg := snap.Config

		images := 0
		for _, list := range snap.Images {
			images += len(list)
		}

		var sb strings.Builder
		sb.WriteString("🖥️ Display state\n\n")
		fmt.Fprintf(&sb, "- **Mode:** %s | **Theme:** %s\n", cfg.Layout.Mode, cfg.Theme)
		fmt.Fprintf(&sb, "- **Connected displays:** %d\n", displays.Len())
		fmt.Fprintf(&sb, "- **Status light:** %s %s", statusIcon(cfg.InfoBoxes.Ampel.Status), cfg.InfoBoxes.Ampel.Label)
		if cfg.InfoBoxes.Ampel.Details != "" {
			fmt.Fprintf(&sb, " (%s)", cfg.InfoBoxes.Ampel.Details)
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "- **Text panel:** %s\n", cfg.TextPanel.Title)
		fmt.Fprintf(&sb, "- **Folders:** %d with %d images\n", len(snap.Folders), images)

		if cfg.Ticker.Enabled && len(cfg.Ticker.Items) > 0 {
			sb.WriteString("\n**Ticker:**\n")
			for _, item := range cfg.Ticker.Items {
				fmt.Fprintf(&sb, "  • %s\n", item)
			}
		} else {
			sb.WriteString("\nTicker is off.\n")
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func statusIcon(status string) string {
	switch status {
	case "green":
		return "🟢"
	case "yellow":
		return "🟡"
	case "red":
		return "🔴"
	default:
		return "⚪"
	}
}
