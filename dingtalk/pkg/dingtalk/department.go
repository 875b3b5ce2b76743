package dingtalk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseDepartment 解析部门 ID 列表
// 接口可能返回数字数组、数字字符串数组，或者形如 "[1,2,3]" 的字符串
func ParseDepartment(raw json.RawMessage) ([]int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var items []any
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("invalid department list: %w", err)
		}
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			var s string
			switch v := item.(type) {
			case json.Number:
				s = v.String()
			case string:
				s = v
			default:
				return nil, fmt.Errorf("invalid department id %v", item)
			}
			id, err := parseDepartmentID(s)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid department string: %w", err)
		}
		return ParseDepartmentString(s)
	default:
		return nil, fmt.Errorf("unsupported department format: %s", string(raw))
	}
}

// ParseDepartmentString 解析 "[1,2,3]" 或 "1,2,3"
func ParseDepartmentString(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part == "" {
			continue
		}
		id, err := parseDepartmentID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDepartmentID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid department id %q: %w", s, err)
	}
	return id, nil
}
