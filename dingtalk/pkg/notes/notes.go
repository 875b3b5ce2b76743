package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"dingtalk-mcp/tools/middleware"
)

const (
	AppName = "notes"

	// URIScheme 笔记资源的 URI 前缀
	URIScheme = "note"
	MIMEType  = "text/plain"
)

var ErrNotFound = errors.New("note not found")

type Service interface {
	ListNotes(ctx context.Context, req *middleware.PageRequest) (*NoteSet, error)
	DescribeNote(ctx context.Context, id string) (*Note, error)
}

type Meta struct {
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at"`
}

// Note 文本笔记
type Note struct {
	ID      string `json:"id" gorm:"column:id;primaryKey;size:64"`
	Title   string `json:"title" gorm:"column:title;size:255"`
	Content string `json:"content" gorm:"column:content;type:text"`
	Meta    `gorm:"embedded"`
}

func (Note) TableName() string {
	return "mcp_notes"
}

func (n *Note) String() string {
	jsonStr, _ := json.Marshal(n)
	return string(jsonStr)
}

// URI 资源地址，形如 note:///1
func (n *Note) URI() string {
	return URI(n.ID)
}

type NoteSet struct {
	Items []*Note `json:"items"`
	Total int64   `json:"total"`
}

func NewNoteSet() *NoteSet {
	return &NoteSet{
		Items: []*Note{},
		Total: 0,
	}
}

// Seed 默认笔记
func Seed() []*Note {
	return []*Note{
		{ID: "1", Title: "First Note", Content: "This is note 1"},
		{ID: "2", Title: "Second Note", Content: "This is note 2"},
	}
}

func URI(id string) string {
	return fmt.Sprintf("%s:///%s", URIScheme, id)
}

// IDFromURI 从 note:///<id> 中解析出 id
func IDFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid note uri %q: %w", uri, err)
	}
	if u.Scheme != URIScheme {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	id := strings.TrimPrefix(u.Path, "/")
	if id == "" {
		return "", fmt.Errorf("note id missing in uri %q", uri)
	}
	return id, nil
}
