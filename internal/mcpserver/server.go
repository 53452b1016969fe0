package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	apppublic "tap-racer/internal/app/public"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes read-only race data to MCP clients over streamable HTTP.
type Server struct {
	publicSvc *apppublic.Service

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(publicSvc *apppublic.Service) *Server {
	mcpSrv := server.NewMCPServer(
		"tap-racer",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		publicSvc:  publicSvc,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerRaceTools()
	s.registerPlayerTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"race://{match_id}/state",
			"race_state",
			mcp.WithTemplateDescription("Current or final state of a race by match id"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := string(request.Params.URI)
			matchID, ok := parseRaceURI(raw)
			if !ok {
				return nil, nil
			}
			resp, err := s.publicSvc.Race(ctx, matchID)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(resp)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}

func parseRaceURI(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "race://") || !strings.HasSuffix(raw, "/state") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(raw, "race://"), "/state")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
