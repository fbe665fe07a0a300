package processor

import (
	"fmt"
	"math"

	"github.com/LJTian/AIUsageHub/internal/scorer"
	"github.com/LJTian/AIUsageHub/internal/storage"
)

// Sum 把各数据源的得分逐分类相加；失败的数据源不会出现在 vectors 中
func Sum(vectors ...scorer.ScoreVector) scorer.ScoreVector {
	out := make(scorer.ScoreVector)
	for _, v := range vectors {
		for k, n := range v {
			out[k] += n
		}
	}
	return out
}

// Normalize 按 order 顺序把命中次数换算成整数百分比。
// 每个分类独立四舍五入，总和可能偏离 100，不做余数回补；总数为 0 时按 1 处理，结果全为 0。
func Normalize(order []string, v scorer.ScoreVector) []int {
	total := 0
	for _, k := range order {
		total += v[k]
	}
	if total == 0 {
		total = 1
	}

	out := make([]int, len(order))
	for i, k := range order {
		out[i] = int(math.Round(float64(v[k]) / float64(total) * 100))
	}
	return out
}

// Merge 把新的百分比写入文档：current.categories 按下标覆盖，history 追加一条。
// 写入前校验文档分类的数量、顺序与名称和 names 完全一致，不一致时返回 DocumentLoadError 且不修改 doc。
func Merge(doc *storage.Document, names []string, percentages []int, date string) error {
	if len(names) != len(percentages) {
		return fmt.Errorf("merge: %d names but %d percentages", len(names), len(percentages))
	}
	if err := ValidateOrder(doc, names); err != nil {
		return err
	}

	entry := storage.HistoryEntry{
		Date:       date,
		Categories: make([]storage.HistoryCategory, len(names)),
	}
	for i := range names {
		doc.Current.Categories[i].Percentage = percentages[i]
		entry.Categories[i] = storage.HistoryCategory{Name: names[i], Percentage: percentages[i]}
	}
	doc.History = append(doc.History, entry)
	return nil
}

// ValidateOrder 检查 current.categories[i].name == names[i]
func ValidateOrder(doc *storage.Document, names []string) error {
	cats := doc.Current.Categories
	if len(cats) != len(names) {
		return &storage.DocumentLoadError{
			Err: fmt.Errorf("%w: document has %d categories, configured %d",
				storage.ErrCategoryMismatch, len(cats), len(names)),
		}
	}
	for i, c := range cats {
		if c.Name != names[i] {
			return &storage.DocumentLoadError{
				Err: fmt.Errorf("%w: position %d is %q in document, %q configured",
					storage.ErrCategoryMismatch, i, c.Name, names[i]),
			}
		}
	}
	return nil
}
