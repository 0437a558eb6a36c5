package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/infotafel/internal/display"
)

// SetStatusLight returns a handler that switches the traffic-light box.
func SetStatusLight(g Gallery) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		status, _ := args["status"].(string)
		if !slices.Contains(display.AmpelStatuses, status) {
			return mcp.NewToolResultError(fmt.Sprintf("status must be one of %v", display.AmpelStatuses)), nil
		}

		cfg, err := g.MutateConfig(func(cfg *display.Config) error {
			cfg.InfoBoxes.Ampel.Status = status
			if label, ok := args["label"].(string); ok {
				cfg.InfoBoxes.Ampel.Label = label
			}
			if details, ok := args["details"].(string); ok {
				cfg.InfoBoxes.Ampel.Details = details
			}
			return nil
		})
		if err != nil {
			return mcp.NewToolResultError(toolError(err)), nil
		}

		a := cfg.InfoBoxes.Ampel
		return mcp.NewToolResultText(fmt.Sprintf("%s Status light set to %s: %s", statusIcon(a.Status), a.Status, a.Label)), nil
	}
}
