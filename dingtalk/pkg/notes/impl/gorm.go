package impl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dingtalk-mcp/dingtalk/pkg/notes"
	"dingtalk-mcp/tools/middleware"

	"gorm.io/gorm"
)

// NotesImpl MySQL 笔记存储
type NotesImpl struct {
	db *gorm.DB
}

var _ notes.Service = (*NotesImpl)(nil)

func NewNotesImpl(db *gorm.DB) *NotesImpl {
	return &NotesImpl{db: db}
}

// Init 建表，表为空时写入默认笔记
func (r *NotesImpl) Init(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&notes.Note{}); err != nil {
		return fmt.Errorf("failed to migrate notes table: %w", err)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&notes.Note{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().Unix()
	seed := notes.Seed()
	for _, n := range seed {
		n.Meta = notes.Meta{CreatedAt: now, UpdatedAt: now}
	}
	return r.db.WithContext(ctx).Create(&seed).Error
}

// 查询笔记列表
func (r *NotesImpl) ListNotes(ctx context.Context, req *middleware.PageRequest) (*notes.NoteSet, error) {
	set := notes.NewNoteSet()
	query := r.db.Model(&notes.Note{}).WithContext(ctx)

	if err := query.Count(&set.Total).Error; err != nil {
		return nil, err
	}

	query = query.Order("id")
	if req != nil && req.PageSize > 0 {
		query = query.Offset(req.Offset()).Limit(req.PageSize)
	}
	if err := query.Find(&set.Items).Error; err != nil {
		return nil, err
	}
	return set, nil
}

// 查询笔记详情
func (r *NotesImpl) DescribeNote(ctx context.Context, id string) (*notes.Note, error) {
	if id == "" {
		return nil, gorm.ErrInvalidValue
	}

	n := &notes.Note{}
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notes.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}
