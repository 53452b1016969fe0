package mcpserver

import (
	"errors"

	apppublic "tap-racer/internal/app/public"

	"github.com/mark3labs/mcp-go/mcp"
)

const codeInternal = "internal_error"

// domainCodes maps service errors onto the stable codes tools report.
var domainCodes = []struct {
	err  error
	code string
}{
	{apppublic.ErrInvalidRequest, "invalid_request"},
	{apppublic.ErrRaceNotFound, "race_not_found"},
	{apppublic.ErrUserNotFound, "user_not_found"},
}

type toolErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultStructured(
		map[string]toolErrorBody{"error": {Code: code, Message: message}},
		code+": "+message,
	)
	result.IsError = true
	return result
}

func mapDomainError(err error) *mcp.CallToolResult {
	if err == nil {
		return toolError(codeInternal, "unknown error")
	}
	for _, dc := range domainCodes {
		if errors.Is(err, dc.err) {
			return toolError(dc.code, err.Error())
		}
	}
	return toolError(codeInternal, err.Error())
}
