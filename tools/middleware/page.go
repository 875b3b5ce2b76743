package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

type PageRequest struct {
	// 分页大小
	PageSize int `json:"pageSize" form:"pageSize" query:"pageSize"`
	// 分页页码，从 1 开始
	PageNum int `json:"pageNum" form:"pageNum" query:"pageNum"`
}

// Offset 计算分页偏移量
func (p *PageRequest) Offset() int {
	return (p.PageNum - 1) * p.PageSize
}

// NewPageRequest 创建默认分页请求
func NewPageRequest() *PageRequest {
	return &PageRequest{
		PageSize: 10,
		PageNum:  1,
	}
}

// NewPageRequestFromContext 从查询参数创建分页请求
func NewPageRequestFromContext(c *gin.Context) (*PageRequest, error) {
	p := NewPageRequest()

	if s := c.Query("pageNum"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return nil, ErrValidateFailed("invalid pageNum: %s", s)
		}
		p.PageNum = n
	}
	if s := c.Query("pageSize"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			return nil, ErrValidateFailed("invalid pageSize: %s", s)
		}
		p.PageSize = n
	}

	return p, nil
}
