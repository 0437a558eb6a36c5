package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ListFolders returns a handler that lists image folders, marking the ones
// the carousel currently shows.
func ListFolders(g Gallery) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := g.Snapshot()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list folders: %s", err)), nil
		}

		if len(snap.Folders) == 0 {
			return mcp.NewToolResultText("No folders yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "📁 Folders (%d)\n\n", len(snap.Folders))
		for _, f := range snap.Folders {
			marker := " "
			if snap.Config.Carousel.Folders.Includes(f.ID) {
				marker = "▶"
			}
			fmt.Fprintf(&sb, "%s **%s** (%s): %d images\n", marker, f.Name, f.ID, len(snap.Images[f.ID]))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
