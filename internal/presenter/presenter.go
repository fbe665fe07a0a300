package presenter

import (
	"bytes"
	"html/template"
	"log"

	"github.com/yuin/goldmark"

	"github.com/LJTian/AIUsageHub/internal/storage"
)

// SnapshotView 环形图与图例使用的三组平行数组，顺序与 current.categories 一致
type SnapshotView struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
	Colors []string `json:"colors"`
}

// Series 折线图中一条分类曲线；某条历史记录缺少该分类时对应位置为 nil（JSON 中为 null）
type Series struct {
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
	Data  []*int `json:"data"`
}

// TrendView 折线图数据：日期按历史记录存储顺序排列，不重新排序
type TrendView struct {
	Dates  []string `json:"dates"`
	Series []Series `json:"series"`
}

// Dashboard 页面一次性需要的全部数据
type Dashboard struct {
	Snapshot    SnapshotView  `json:"snapshot"`
	Trend       TrendView     `json:"trend"`
	Summary     string        `json:"summary"`
	SummaryHTML template.HTML `json:"summaryHtml"`
}

func Snapshot(categories []storage.Category) SnapshotView {
	v := SnapshotView{
		Labels: make([]string, len(categories)),
		Values: make([]int, len(categories)),
		Colors: make([]string, len(categories)),
	}
	for i, c := range categories {
		v.Labels[i] = c.Name
		v.Values[i] = c.Percentage
		v.Colors[i] = c.Color
	}
	return v
}

// Trend 按 labels 为每个分类生成一条曲线；按名称查找，老记录缺分类时填 nil 而不是 0
func Trend(history []storage.HistoryEntry, labels []string) TrendView {
	tv := TrendView{
		Dates:  make([]string, len(history)),
		Series: make([]Series, len(labels)),
	}
	for i, h := range history {
		tv.Dates[i] = h.Date
	}
	for j, label := range labels {
		data := make([]*int, len(history))
		for i, h := range history {
			data[i] = findPercentage(h.Categories, label)
		}
		tv.Series[j] = Series{Label: label, Data: data}
	}
	return tv
}

func findPercentage(cats []storage.HistoryCategory, name string) *int {
	for _, c := range cats {
		if c.Name == name {
			p := c.Percentage
			return &p
		}
	}
	return nil
}

// BuildDashboard 从文档派生页面数据；曲线颜色沿用快照中同下标分类的颜色
func BuildDashboard(doc *storage.Document) Dashboard {
	snap := Snapshot(doc.Current.Categories)
	trend := Trend(doc.History, snap.Labels)
	for i := range trend.Series {
		trend.Series[i].Color = snap.Colors[i]
	}
	return Dashboard{
		Snapshot:    snap,
		Trend:       trend,
		Summary:     doc.Current.Summary,
		SummaryHTML: RenderSummary(doc.Current.Summary),
	}
}

// RenderSummary 把摘要当作 Markdown 渲染；原始 HTML 不透传
func RenderSummary(md string) template.HTML {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		log.Printf("render summary error: %v", err)
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
