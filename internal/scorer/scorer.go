package scorer

import (
	"strings"

	"github.com/LJTian/AIUsageHub/internal/config"
)

// ScoreVector 分类 key -> 关键词命中次数
type ScoreVector map[string]int

// Total 所有分类命中次数之和
func (v ScoreVector) Total() int {
	sum := 0
	for _, n := range v {
		sum += n
	}
	return sum
}

// CategoryKeywords 一个分类及其有序关键词列表（允许重复，重复项会重复计数）
type CategoryKeywords struct {
	Category string
	Keywords []string
}

// KeywordSet 有序的分类关键词表
type KeywordSet []CategoryKeywords

// KeywordSetFromCatalog 按 catalog 中的分类顺序构建关键词表
func KeywordSetFromCatalog(cat *config.Catalog) KeywordSet {
	set := make(KeywordSet, 0, len(cat.Categories))
	for _, c := range cat.Categories {
		set = append(set, CategoryKeywords{Category: c.Key, Keywords: c.Keywords})
	}
	return set
}

// Scorer 把一段文本映射为各分类得分，方便以后替换成更好的分类器
type Scorer interface {
	Score(text string) ScoreVector
}

// KeywordScorer 对小写后的文本做纯子串计数：不分词、不看词边界、不做词干化。
// 这是有意的粗略启发式，"art" 会命中 "start"、"ask" 会命中 "task"。
type KeywordScorer struct {
	Set KeywordSet
}

func NewKeywordScorer(set KeywordSet) *KeywordScorer {
	return &KeywordScorer{Set: set}
}

func (s *KeywordScorer) Score(text string) ScoreVector {
	lower := strings.ToLower(text)
	out := make(ScoreVector, len(s.Set))
	for _, ck := range s.Set {
		hits := 0
		for _, kw := range ck.Keywords {
			if kw == "" {
				continue
			}
			hits += strings.Count(lower, strings.ToLower(kw))
		}
		out[ck.Category] += hits
	}
	return out
}
