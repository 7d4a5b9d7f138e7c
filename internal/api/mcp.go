package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/leafwise/internal/identify"
	"github.com/kalambet/leafwise/internal/scan"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	History *scan.History
	Gateway identify.Gateway // optional; if nil, identify_plant returns an error
	Version string
}

// plantView is a scan without its photo, which is too large for a tool
// response.
type plantView struct {
	ID             string            `json:"id"`
	CommonName     string            `json:"commonName"`
	ScientificName string            `json:"scientificName"`
	Confidence     float64           `json:"confidence"`
	IsFavorite     bool              `json:"isFavorite"`
	CreatedAt      string            `json:"createdAt"`
	Notes          string            `json:"notes,omitempty"`
	CareTips       string            `json:"careTips,omitempty"`
	Reminder       *scan.Reminder    `json:"reminder,omitempty"`
	Suggestions    []scan.Suggestion `json:"suggestions,omitempty"`
}

func viewOf(s scan.Scan, detailed bool) plantView {
	v := plantView{
		ID:             s.ID,
		CommonName:     s.CommonName,
		ScientificName: s.ScientificName,
		Confidence:     s.Confidence,
		IsFavorite:     s.IsFavorite,
		CreatedAt:      time.UnixMilli(s.CreatedAt).UTC().Format(time.RFC3339),
		Notes:          s.Notes,
		Reminder:       s.Reminder,
	}
	if detailed {
		v.CareTips = s.CareTips
		v.Suggestions = s.Suggestions
	}
	return v
}

func viewsOf(list []scan.Scan) []plantView {
	out := make([]plantView, len(list))
	for i, s := range list {
		out[i] = viewOf(s, false)
	}
	return out
}

// NewMCPServer creates an MCP server exposing the plant collection.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"leafwise",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("leafwise keeps a collection of identified plants with care tips, notes and watering reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_plants",
			mcp.WithDescription("List the plants in the collection, newest first."),
			mcp.WithBoolean("favorites", mcp.Description("Only list favourite plants")),
		),
		mcpListPlants(deps),
	)

	s.AddTool(
		mcp.NewTool("get_plant",
			mcp.WithDescription("Get one plant with its care tips and related plants."),
			mcp.WithString("id", mcp.Description("Plant id"), mcp.Required()),
		),
		mcpGetPlant(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_favorite",
			mcp.WithDescription("Flip the favourite flag of a plant."),
			mcp.WithString("id", mcp.Description("Plant id"), mcp.Required()),
		),
		mcpToggleFavorite(deps),
	)

	s.AddTool(
		mcp.NewTool("set_notes",
			mcp.WithDescription("Replace the personal notes of a plant."),
			mcp.WithString("id", mcp.Description("Plant id"), mcp.Required()),
			mcp.WithString("notes", mcp.Description("New notes; empty clears them"), mcp.Required()),
		),
		mcpSetNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("identify_plant",
			mcp.WithDescription("Identify a plant photo and add it to the collection."),
			mcp.WithString("image", mcp.Description("Photo as a data:image/...;base64 URI"), mcp.Required()),
			mcp.WithString("common_name_hint", mcp.Description("Common name, if already known")),
			mcp.WithString("scientific_name_hint", mcp.Description("Scientific name, if already known")),
		),
		mcpIdentifyPlant(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"plants://favorites",
			"Favourite Plants",
			mcp.WithResourceDescription("Favourite plants as JSON, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFavorites(deps),
	)

	return s
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpListPlants(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			list []scan.Scan
			err  error
		)
		if req.GetBool("favorites", false) {
			list, err = deps.History.Favorites()
		} else {
			list, err = deps.History.List()
		}
		if err != nil {
			return mcpError(fmt.Sprintf("listing plants: %v", err)), nil
		}
		return mcpJSON(viewsOf(list)), nil
	}
}

func mcpGetPlant(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		s, err := deps.History.Find(id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(viewOf(s, true)), nil
	}
}

func mcpToggleFavorite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		s, err := deps.History.ToggleFavorite(id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		state := "removed from"
		if s.IsFavorite {
			state = "added to"
		}
		return mcpText(fmt.Sprintf("%s %s favourites", s.CommonName, state)), nil
	}
}

func mcpSetNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		notes := req.GetString("notes", "")

		s, err := deps.History.SetNotes(id, notes)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Updated notes for %s", s.CommonName)), nil
	}
}

func mcpIdentifyPlant(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Gateway == nil {
			return mcpError("identification not available: no recognizer or prompt backend configured"), nil
		}
		image, err := req.RequireString("image")
		if err != nil {
			return mcpError("image is required"), nil
		}

		idReq := identify.Request{
			Image:              image,
			CommonNameHint:     req.GetString("common_name_hint", ""),
			ScientificNameHint: req.GetString("scientific_name_hint", ""),
		}
		res, err := deps.Gateway.Identify(ctx, idReq)
		if errors.Is(err, identify.ErrNoMatch) {
			return mcpError("could not identify a plant in this photo"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("identification failed: %v", err)), nil
		}

		s, err := deps.History.Add(ScanFromResult(image, res))
		if err != nil {
			return mcpError(fmt.Sprintf("identified %s but failed to save: %v", res.CommonName, err)), nil
		}
		return mcpJSON(viewOf(s, true)), nil
	}
}

func mcpResourceFavorites(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		favs, err := deps.History.Favorites()
		if err != nil {
			return nil, fmt.Errorf("listing favourites: %w", err)
		}

		b, err := json.Marshal(viewsOf(favs))
		if err != nil {
			return nil, fmt.Errorf("marshaling favourites: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
