package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerRaceTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_live_races",
			mcp.WithDescription("List races currently in memory with their state and player progress"),
		),
		s.handleListLiveRaces,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_race",
			mcp.WithDescription("Get a race by match id, live or finished"),
			mcp.WithString("match_id", mcp.Required(), mcp.Description("Match id")),
		),
		s.handleGetRace,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_queue",
			mcp.WithDescription("List players waiting in the matchmaking queue"),
		),
		s.handleGetQueue,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_recent_matches",
			mcp.WithDescription("List recently finished matches, newest first"),
			mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100")),
		),
		s.handleListRecentMatches,
	)
}

func (s *Server) handleListLiveRaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.publicSvc.Races(ctx)
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetRace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	matchID, err := request.RequireString("match_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	resp, svcErr := s.publicSvc.Race(ctx, matchID)
	if svcErr != nil {
		return mapDomainError(svcErr), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleGetQueue(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.publicSvc.Queue(ctx)
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(resp), nil
}

func (s *Server) handleListRecentMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultRecentLimit)
	limit, _ = clampPagination(limit, 0, maxRecentLimit)
	resp, err := s.publicSvc.RecentMatches(ctx, limit)
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(resp), nil
}
