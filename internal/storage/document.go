package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// 文档每一层（顶层、current、分类、历史记录）都保留未知字段：
// 采集端只改百分比、只追加历史，其余人工维护的内容原样写回。

// Category current 快照中的一个分类
type Category struct {
	Name       string `json:"name"`
	Percentage int    `json:"percentage"`
	Color      string `json:"color,omitempty"`

	extra map[string]json.RawMessage
}

// Current 最新一次估算
type Current struct {
	Categories []Category `json:"categories"`
	// 约 200 词以内的说明文字，按约定不做强制
	Summary string `json:"summary"`

	extra map[string]json.RawMessage
}

// HistoryCategory 历史记录中的分类百分比
type HistoryCategory struct {
	Name       string `json:"name"`
	Percentage int    `json:"percentage"`

	extra map[string]json.RawMessage
}

// HistoryEntry 一次采集运行追加的一条历史记录，写入后不再修改
type HistoryEntry struct {
	Date       string            `json:"date"`
	Categories []HistoryCategory `json:"categories"`

	extra map[string]json.RawMessage
}

// Document 持久化文档：采集端整体读改写，展示端只读
type Document struct {
	Current Current
	History []HistoryEntry

	extra map[string]json.RawMessage
}

// 以下类型与原类型字段相同但没有方法，用于避免 (Un)MarshalJSON 递归
type (
	categoryFields        Category
	currentFields         Current
	historyCategoryFields HistoryCategory
	historyEntryFields    HistoryEntry
	documentFields        struct {
		Current Current        `json:"current"`
		History []HistoryEntry `json:"history"`
	}
)

var errMissingCurrent = errors.New(`missing "current" section`)

func (c *Category) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*categoryFields)(c)); err != nil {
		return err
	}
	extra, err := splitExtra(data, "name", "percentage", "color")
	c.extra = extra
	return err
}

func (c Category) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(categoryFields(c), c.extra)
}

func (c *Current) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*currentFields)(c)); err != nil {
		return err
	}
	extra, err := splitExtra(data, "categories", "summary")
	c.extra = extra
	return err
}

func (c Current) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(currentFields(c), c.extra)
}

func (h *HistoryCategory) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*historyCategoryFields)(h)); err != nil {
		return err
	}
	extra, err := splitExtra(data, "name", "percentage")
	h.extra = extra
	return err
}

func (h HistoryCategory) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(historyCategoryFields(h), h.extra)
}

func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*historyEntryFields)(h)); err != nil {
		return err
	}
	extra, err := splitExtra(data, "date", "categories")
	h.extra = extra
	return err
}

func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(historyEntryFields(h), h.extra)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cur, ok := raw["current"]
	if !ok || bytes.Equal(bytes.TrimSpace(cur), []byte("null")) {
		return errMissingCurrent
	}

	var f documentFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := splitExtra(data, "current", "history")
	if err != nil {
		return err
	}
	*d = Document{Current: f.Current, History: f.History, extra: extra}
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	history := d.History
	if history == nil {
		history = []HistoryEntry{}
	}
	return marshalWithExtra(documentFields{Current: d.Current, History: history}, d.extra)
}

// splitExtra 返回 data 中除 known 以外的字段；没有时返回 nil。
// encoding/json 匹配字段名不区分大小写，这里保持一致，避免同一字段写出两次。
func splitExtra(data []byte, known ...string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k := range raw {
		for _, name := range known {
			if strings.EqualFold(k, name) {
				delete(raw, k)
				break
			}
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// marshalWithExtra 先按结构体字段顺序输出已知字段，再按字母序追加未知字段
func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := marshalNoEscape(known)
	if err != nil || len(extra) == 0 {
		return b, err
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(b[:len(b)-1])
	empty := bytes.Equal(bytes.TrimSpace(b), []byte("{}"))
	for _, k := range keys {
		if !empty {
			buf.WriteByte(',')
		}
		empty = false
		key, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape 与 json.Marshal 相同，但不把 <>& 转义成 < 等，保持文档可读
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode 以两个空格缩进输出文档
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode 解析文档内容
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
