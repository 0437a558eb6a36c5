package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/infotafel/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// get_display_state: What the kiosk shows right now
	s.AddTool(
		mcp.NewTool("get_display_state",
			mcp.WithDescription("Summarize what the kiosk display currently shows: layout, status light, text panel, ticker and image folders."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handlers.GetDisplayState(deps.Gallery, deps.Displays),
	)

	// list_folders: Image folders and carousel selection
	s.AddTool(
		mcp.NewTool("list_folders",
			mcp.WithDescription("List image folders with their image counts. Folders shown in the carousel are marked."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handlers.ListFolders(deps.Gallery),
	)

	// update_ticker: Replace the scrolling ticker lines
	s.AddTool(
		mcp.NewTool("update_ticker",
			mcp.WithDescription("Replace the lines of the scrolling ticker at the bottom of the display. Connected displays refresh immediately."),
			mcp.WithArray("items",
				mcp.Required(),
				mcp.Description("Ticker lines in display order"),
				mcp.WithStringItems(),
			),
			mcp.WithBoolean("enabled",
				mcp.Description("Turn the ticker on or off"),
			),
			mcp.WithNumber("speed",
				mcp.Description("Scroll speed in pixels per second (10-500)"),
			),
		),
		handlers.UpdateTicker(deps.Gallery),
	)

	// set_status_light: Traffic-light status box
	s.AddTool(
		mcp.NewTool("set_status_light",
			mcp.WithDescription("Set the traffic-light status box, e.g. red for reduced care."),
			mcp.WithString("status",
				mcp.Required(),
				mcp.Description("Light color"),
				mcp.Enum("green", "yellow", "red"),
			),
			mcp.WithString("label",
				mcp.Description("Short headline next to the light"),
			),
			mcp.WithString("details",
				mcp.Description("One line of detail text"),
			),
		),
		handlers.SetStatusLight(deps.Gallery),
	)

	// set_text_panel: Markdown announcement panel
	s.AddTool(
		mcp.NewTool("set_text_panel",
			mcp.WithDescription("Write the Markdown text panel. With show=true the display switches from the image carousel to the text panel."),
			mcp.WithString("title",
				mcp.Description("Panel heading"),
			),
			mcp.WithString("markdown",
				mcp.Description("Panel body in Markdown"),
			),
			mcp.WithBoolean("show",
				mcp.Description("true shows the text panel, false returns to the carousel"),
			),
		),
		handlers.SetTextPanel(deps.Gallery),
	)
}
