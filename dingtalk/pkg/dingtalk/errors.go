package dingtalk

// ErrorPolicy 查询失败时的处理方式
type ErrorPolicy int

const (
	// FailSoft 记录日志后返回空结果
	FailSoft ErrorPolicy = iota
	// FailHard 立即向上返回错误
	FailHard
)

func (p ErrorPolicy) String() string {
	switch p {
	case FailSoft:
		return "fail-soft"
	case FailHard:
		return "fail-hard"
	default:
		return "unknown"
	}
}
