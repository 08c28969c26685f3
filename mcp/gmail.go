package mcp

import (
	"context"
	"fmt"

	"github.com/fwojciec/aide"
	"github.com/mark3labs/mcp-go/server"
)

// Mail tool names.
const (
	ToolListMessages   = "list-messages"
	ToolGetMessageBody = "get-message-body"
)

type listMessagesParams struct {
	MaxResults int    `json:"max_results,omitempty" jsonschema:"default=10,minimum=1" jsonschema_description:"Maximum number of messages to return."`
	Query      string `json:"query,omitempty" jsonschema_description:"Gmail search query, e.g. from:sender@example.com subject:important."`
}

type getMessageBodyParams struct {
	MessageID string `json:"message_id" jsonschema_description:"ID of the message to retrieve."`
}

// NewGmailServer returns an MCP server exposing svc as the mail tools.
func NewGmailServer(svc aide.MailService) *server.MCPServer {
	srv := newServer("Gmail")

	addTool(srv, ToolListMessages,
		"List messages from the user's Gmail inbox, with optional max_results and search query.",
		func(ctx context.Context, p listMessagesParams) (aide.MessageList, error) {
			return svc.ListMessages(ctx, aide.MessageQuery{MaxResults: maxResults(p.MaxResults), Query: p.Query})
		})

	addTool(srv, ToolGetMessageBody,
		"Retrieve the plain text body of a message by its ID.",
		func(ctx context.Context, p getMessageBodyParams) (aide.MessageBody, error) {
			if p.MessageID == "" {
				return aide.MessageBody{}, fmt.Errorf("message_id is required")
			}
			return svc.GetMessageBody(ctx, p.MessageID)
		})

	return srv
}
