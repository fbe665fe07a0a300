package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category 一个固定的使用场景分类；Name 必须与持久化文档中 current.categories 的顺序和名称一致
type Category struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Color    string   `yaml:"color"`
	Keywords []string `yaml:"keywords"`
}

// Source 一个用于计分的公开页面
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Catalog 编译进采集端的静态配置：分类（含关键词）与数据源
type Catalog struct {
	Categories []Category `yaml:"categories"`
	Sources    []Source   `yaml:"sources"`
}

// DefaultCatalog 返回内置的分类与数据源。
// 关键词是短子串，按子串匹配（"recipe" 也会命中其它词中的 recipe），只是粗略信号。
func DefaultCatalog() *Catalog {
	return &Catalog{
		Categories: []Category{
			{
				Key:      "productivity",
				Name:     "Productivité bureautique",
				Color:    "#4e79a7",
				Keywords: []string{"email", "meeting", "summari", "draft", "present", "copy", "word", "excel", "office", "document"},
			},
			{
				Key:      "creativity",
				Name:     "Créativité",
				Color:    "#f28e2b",
				Keywords: []string{"image", "art", "design", "music", "creative", "story", "poem", "photo", "graphic", "illustrat"},
			},
			{
				Key:      "education",
				Name:     "Apprentissage / Éducation",
				Color:    "#59a14f",
				Keywords: []string{"student", "learn", "school", "homework", "teach", "quiz", "exam", "education"},
			},
			{
				Key:      "development",
				Name:     "Développement / Technique",
				Color:    "#e15759",
				Keywords: []string{"code", "developer", "debug", "stack", "script", "program", "api", "software", "engineer"},
			},
			{
				Key:      "daily",
				Name:     "Usage quotidien / Curiosité",
				Color:    "#76b7b2",
				Keywords: []string{"recipe", "travel", "recipe", "advice", "daily", "search", "curios", "ask", "question"},
			},
		},
		Sources: []Source{
			{Name: "microsoft-ai-at-work", URL: "https://www.microsoft.com/en-us/worklab/work-trend-index/ai-at-work-is-here-now-comes-the-hard-part"},
			{Name: "mckinsey-state-of-ai", URL: "https://www.mckinsey.com/capabilities/quantumblack/our-insights/the-state-of-ai-2024"},
			{Name: "openai-chatgpt-usage", URL: "https://openai.com/index/how-people-are-using-chatgpt/"},
			{Name: "stanford-ai-index", URL: "https://hai.stanford.edu/ai-index/2024-ai-index-report"},
			{Name: "deloitte-genai-2024", URL: "https://www.deloitte.com/us/en/insights/focus/cognitive-technologies/state-of-generative-ai-in-enterprise.html"},
		},
	}
}

// LoadCatalog 读取 YAML 覆盖配置；path 为空时返回内置配置。
// 文件中未出现的部分（sources 或 categories）沿用内置值。
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if len(override.Categories) > 0 {
		cat.Categories = override.Categories
	}
	if len(override.Sources) > 0 {
		cat.Sources = override.Sources
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate 检查分类 key 唯一且每个分类至少有一个关键词
func (c *Catalog) Validate() error {
	if len(c.Categories) == 0 {
		return errors.New("catalog: no categories")
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Key == "" || cat.Name == "" {
			return fmt.Errorf("catalog: category #%d needs key and name", i)
		}
		if _, ok := seen[cat.Key]; ok {
			return fmt.Errorf("catalog: duplicate category key %q", cat.Key)
		}
		seen[cat.Key] = struct{}{}
		if len(cat.Keywords) == 0 {
			return fmt.Errorf("catalog: category %q has no keywords", cat.Key)
		}
	}
	for i, s := range c.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("catalog: source #%d needs name and url", i)
		}
	}
	return nil
}

// Names 按配置顺序返回分类展示名
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = cat.Name
	}
	return out
}

// Keys 按配置顺序返回分类 key
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = cat.Key
	}
	return out
}
