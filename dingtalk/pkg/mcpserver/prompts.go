package mcpserver

import (
	"context"

	"dingtalk-mcp/dingtalk/pkg/notes"

	"github.com/mark3labs/mcp-go/mcp"
)

const summarizeNotesPrompt = "summarize_notes"

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt(summarizeNotesPrompt,
		mcp.WithPromptDescription("Summarize all notes"),
	), s.summarizeNotes)
}

// summarizeNotes 把每条笔记作为嵌入资源放进提示词
func (s *Server) summarizeNotes(ctx context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	set, err := s.notes.ListNotes(ctx, nil)
	if err != nil {
		return nil, err
	}

	messages := make([]mcp.PromptMessage, 0, len(set.Items)+2)
	messages = append(messages, mcp.NewPromptMessage(mcp.RoleUser,
		mcp.NewTextContent("Please summarize the following notes:")))
	for _, n := range set.Items {
		messages = append(messages, mcp.NewPromptMessage(mcp.RoleUser,
			mcp.NewEmbeddedResource(mcp.TextResourceContents{
				URI:      n.URI(),
				MIMEType: notes.MIMEType,
				Text:     n.Content,
			})))
	}
	messages = append(messages, mcp.NewPromptMessage(mcp.RoleUser,
		mcp.NewTextContent("Provide a concise summary of all the notes above.")))

	return mcp.NewGetPromptResult("Summarize all notes", messages), nil
}
