package mcpserver

import (
	"context"
	"fmt"

	"dingtalk-mcp/dingtalk/pkg/notes"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources(ctx context.Context) error {
	set, err := s.notes.ListNotes(ctx, nil)
	if err != nil {
		return err
	}

	for _, n := range set.Items {
		s.mcp.AddResource(mcp.NewResource(n.URI(), n.Title,
			mcp.WithResourceDescription(fmt.Sprintf("A text note: %s", n.Title)),
			mcp.WithMIMEType(notes.MIMEType),
		), s.readNote)
	}

	// 启动后新增的笔记通过模板读取
	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(notes.URIScheme+":///{id}", "Note",
		mcp.WithTemplateDescription("A text note by id"),
		mcp.WithTemplateMIMEType(notes.MIMEType),
	), s.readNote)

	s.logger.Info("Registered %d note resources", len(set.Items))
	return nil
}

func (s *Server) readNote(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := notes.IDFromURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	n, err := s.notes.DescribeNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", id, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: notes.MIMEType,
			Text:     n.Content,
		},
	}, nil
}
