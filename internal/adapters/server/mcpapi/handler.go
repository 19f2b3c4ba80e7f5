// Package mcpapi provides a stateless MCP streamable-HTTP adapter exposing
// board and card tools.
package mcpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/tavla/internal/adapters/server/common"
	"github.com/hylla/tavla/internal/engine"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter over the shared board service.
func NewHandler(cfg Config, svc *common.BoardService) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("board service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerBoardTools(mcpSrv, svc)
	registerCardTools(mcpSrv, svc)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "tavla"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerBoardTools registers board listing and lifecycle tools.
func registerBoardTools(srv *mcpserver.MCPServer, svc *common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"tavla.list_boards",
			mcp.WithDescription("List boards, optionally including archived ones."),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived boards")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boards, err := svc.ListBoards(ctx, req.GetBool("include_archived", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"boards": boards})
			if err != nil {
				return nil, fmt.Errorf("encode list_boards result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tavla.create_board",
			mcp.WithDescription("Create a new board."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Board name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			board, err := svc.CreateBoard(ctx, common.CreateBoardRequest{Name: name})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(board)
			if err != nil {
				return nil, fmt.Errorf("encode create_board result: %w", err)
			}
			return result, nil
		},
	)
}

// registerCardTools registers card listing, placement, movement, connection,
// and deletion tools.
func registerCardTools(srv *mcpserver.MCPServer, svc *common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"tavla.list_cards",
			mcp.WithDescription("List all cards of one board in stacking order."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			cards, err := svc.ListCards(ctx, boardID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"cards": cards})
			if err != nil {
				return nil, fmt.Errorf("encode list_cards result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tavla.create_card",
			mcp.WithDescription("Place a new card on a board."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("kind", mcp.Required(), mcp.Description("Card kind, e.g. note, column, text")),
			mcp.WithNumber("x", mcp.Description("Canvas x position")),
			mcp.WithNumber("y", mcp.Description("Canvas y position")),
			mcp.WithNumber("width", mcp.Description("Card width")),
			mcp.WithString("payload_json", mcp.Description("Kind-specific payload as a JSON object")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			kind, err := req.RequireString("kind")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			create := common.CreateCardRequest{
				BoardID: boardID,
				Kind:    kind,
				X:       req.GetFloat("x", 0),
				Y:       req.GetFloat("y", 0),
				Width:   req.GetFloat("width", 0),
			}
			if raw := strings.TrimSpace(req.GetString("payload_json", "")); raw != "" {
				create.Payload = json.RawMessage(raw)
			}
			card, err := svc.CreateCard(ctx, create)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode create_card result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tavla.move_card",
			mcp.WithDescription("Move one card to a new canvas position."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card identifier")),
			mcp.WithNumber("x", mcp.Required(), mcp.Description("New canvas x position")),
			mcp.WithNumber("y", mcp.Required(), mcp.Description("New canvas y position")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			x, err := req.RequireFloat("x")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			y, err := req.RequireFloat("y")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			card, err := svc.MoveCard(ctx, common.MoveCardRequest{BoardID: boardID, CardID: cardID, X: x, Y: y})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode move_card result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tavla.connect_cards",
			mcp.WithDescription("Create a line connecting two cards edge to edge."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("from_id", mcp.Required(), mcp.Description("Source card identifier")),
			mcp.WithString("to_id", mcp.Required(), mcp.Description("Target card identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			fromID, err := req.RequireString("from_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			toID, err := req.RequireString("to_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			line, err := svc.ConnectCards(ctx, common.ConnectCardsRequest{BoardID: boardID, FromID: fromID, ToID: toID})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(line)
			if err != nil {
				return nil, fmt.Errorf("encode connect_cards result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tavla.delete_card",
			mcp.WithDescription("Delete one card from a board."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := svc.DeleteCard(ctx, boardID, cardID); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"deleted": cardID})
			if err != nil {
				return nil, fmt.Errorf("encode delete_card result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, engine.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, engine.ErrCardLocked):
		return mcp.NewToolResultError("card_locked: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
