package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedDoc = `{
  "current": {
    "categories": [
      {"name": "A", "percentage": 50, "color": "#111"},
      {"name": "B", "percentage": 50, "color": "#222"}
    ],
    "summary": "Estimation <b>indicative</b> & manuelle"
  },
  "history": [
    {"date": "2024-01-01", "categories": [{"name": "A", "percentage": 50}, {"name": "B", "percentage": 50}]}
  ],
  "sources_note": {"verified_by": "hand"}
}`

func writeSeed(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewStore(path)
}

func TestLoadParsesDocument(t *testing.T) {
	s := writeSeed(t, seedDoc)

	doc, err := s.Load()
	require.NoError(t, err)
	require.Len(t, doc.Current.Categories, 2)
	assert.Equal(t, Category{Name: "A", Percentage: 50, Color: "#111"}, doc.Current.Categories[0])
	require.Len(t, doc.History, 1)
	assert.Equal(t, "2024-01-01", doc.History[0].Date)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		s := NewStore(filepath.Join(t.TempDir(), "absent.json"))
		_, err := s.Load()
		var le *DocumentLoadError
		require.ErrorAs(t, err, &le)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
	t.Run("invalid json", func(t *testing.T) {
		_, err := writeSeed(t, `{"current": [`).Load()
		var le *DocumentLoadError
		require.ErrorAs(t, err, &le)
	})
	t.Run("missing current", func(t *testing.T) {
		_, err := writeSeed(t, `{"history": []}`).Load()
		var le *DocumentLoadError
		require.ErrorAs(t, err, &le)
		assert.Contains(t, err.Error(), "current")
	})
}

func TestSaveRoundTripKeepsUnknownFieldsAndHTML(t *testing.T) {
	s := writeSeed(t, seedDoc)
	doc, err := s.Load()
	require.NoError(t, err)

	doc.Current.Categories[0].Percentage = 70
	require.NoError(t, s.Save(doc))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `"sources_note"`)
	assert.Contains(t, text, `<b>indicative</b> & manuelle`, "html characters are not escaped")
	assert.Contains(t, text, "\n  \"current\": {", "two-space indentation")

	again, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 70, again.Current.Categories[0].Percentage)
	assert.Equal(t, doc.History, again.History)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, map[string]any{"verified_by": "hand"}, generic["sources_note"])
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := writeSeed(t, seedDoc)
	doc, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(doc))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestSaveIntoMissingDirReturnsWriteError(t *testing.T) {
	s := writeSeed(t, seedDoc)
	doc, err := s.Load()
	require.NoError(t, err)

	// 目标目录不存在：临时文件无法创建
	broken := NewStore(filepath.Join(t.TempDir(), "missing-dir", "data.json"))
	err = broken.Save(doc)
	var we *DocumentWriteError
	require.ErrorAs(t, err, &we)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, seedDoc, string(raw))
}

func TestLockIsExclusive(t *testing.T) {
	s := writeSeed(t, seedDoc)

	unlock, err := s.Lock()
	require.NoError(t, err)

	_, err = s.Lock()
	require.ErrorIs(t, err, ErrLocked)
	var le *DocumentLoadError
	require.ErrorAs(t, err, &le)

	unlock()
	unlock2, err := s.Lock()
	require.NoError(t, err)
	unlock2()
}

func TestLockReplacesStaleLock(t *testing.T) {
	s := writeSeed(t, seedDoc)
	s.staleLock = time.Minute

	require.NoError(t, os.WriteFile(s.lockPath(), []byte("pid=1"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(s.lockPath(), old, old))

	unlock, err := s.Lock()
	require.NoError(t, err)
	unlock()
	_, err = os.Stat(s.lockPath())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUpdateAbortsWithoutWriteOnError(t *testing.T) {
	s := writeSeed(t, seedDoc)
	boom := errors.New("boom")

	_, err := s.Update(func(doc *Document) error {
		doc.Current.Summary = "changed"
		return boom
	})
	require.ErrorIs(t, err, boom)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, seedDoc, string(raw))
	_, err = os.Stat(s.lockPath())
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock released")
}

func TestUpdateWritesChanges(t *testing.T) {
	s := writeSeed(t, seedDoc)

	doc, err := s.Update(func(doc *Document) error {
		doc.History = append(doc.History, HistoryEntry{Date: "2024-01-02"})
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, doc.History, 2)

	again, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, again.History, 2)
}

func TestNewHistorySnapshot(t *testing.T) {
	rec, err := newHistorySnapshot("run-1", HistoryEntry{
		Date:       "2024-05-01",
		Categories: []HistoryCategory{{Name: "A", Percentage: 60}},
	})
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, "run-1", rec.RunID)
	assert.JSONEq(t, `[{"name":"A","percentage":60}]`, string(rec.Categories))

	empty, err := newHistorySnapshot("run-2", HistoryEntry{Date: "2024-05-02"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty.Categories))
}

func TestNilViewCacheIsNoop(t *testing.T) {
	var c *ViewCache
	var out map[string]any
	assert.False(t, c.Get(t.Context(), &out))
	c.Set(t.Context(), map[string]any{"a": 1})
	c.Invalidate(t.Context())
	assert.NoError(t, c.Close())
	assert.Nil(t, NewViewCache(""))
}

const nestedExtraDoc = `{
  "current": {
    "categories": [
      {"name": "A", "percentage": 50, "color": "#111", "description": "office work"},
      {"name": "B", "percentage": 50}
    ],
    "summary": "s",
    "updatedAt": "2024-01-01T00:00:00Z"
  },
  "history": [
    {"date": "2024-01-01", "source": "manual", "categories": [{"name": "A", "percentage": 50, "note": "seed"}, {"name": "B", "percentage": 50}]}
  ]
}`

func TestUpdateKeepsNestedUnknownFields(t *testing.T) {
	s := writeSeed(t, nestedExtraDoc)

	_, err := s.Update(func(doc *Document) error {
		doc.Current.Categories[0].Percentage = 80
		doc.Current.Categories[1].Percentage = 20
		doc.History = append(doc.History, HistoryEntry{
			Date:       "2024-01-02",
			Categories: []HistoryCategory{{Name: "A", Percentage: 80}, {Name: "B", Percentage: 20}},
		})
		return nil
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var generic struct {
		Current struct {
			UpdatedAt  string           `json:"updatedAt"`
			Categories []map[string]any `json:"categories"`
		} `json:"current"`
		History []map[string]any `json:"history"`
	}
	require.NoError(t, json.Unmarshal(raw, &generic))

	assert.Equal(t, "2024-01-01T00:00:00Z", generic.Current.UpdatedAt)
	assert.Equal(t, "office work", generic.Current.Categories[0]["description"])
	assert.Equal(t, 80.0, generic.Current.Categories[0]["percentage"])
	_, ok := generic.Current.Categories[1]["description"]
	assert.False(t, ok)

	require.Len(t, generic.History, 2)
	assert.Equal(t, "manual", generic.History[0]["source"])
	first := generic.History[0]["categories"].([]any)[0].(map[string]any)
	assert.Equal(t, "seed", first["note"])
	assert.NotContains(t, generic.History[1], "source")

	// 再读再写一次，结果不变
	doc, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(doc))
	again, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(again))
}

func TestKnownFieldsComeFirst(t *testing.T) {
	var c Category
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"name":"A","alpha":true,"percentage":5}`), &c))
	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"A","percentage":5,"alpha":true,"zeta":1}`, string(out))
}

func TestUnknownFieldMatchingIsCaseInsensitive(t *testing.T) {
	var h HistoryCategory
	require.NoError(t, json.Unmarshal([]byte(`{"Name":"A","percentage":5}`), &h))
	assert.Equal(t, "A", h.Name)
	out, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"A","percentage":5}`, string(out))
}

func TestLockRetriesWhenHolderReleases(t *testing.T) {
	s := writeSeed(t, seedDoc)
	require.NoError(t, os.WriteFile(s.lockPath(), []byte("pid=1"), 0o644))

	// 模拟持有者在 O_EXCL 失败之后、Stat 之前删除了锁文件
	orig := statLock
	t.Cleanup(func() { statLock = orig })
	statLock = func(name string) (os.FileInfo, error) {
		_ = os.Remove(name)
		return os.Stat(name)
	}

	unlock, err := s.Lock()
	require.NoError(t, err)
	unlock()
}

func TestSaveKeepsFileMode(t *testing.T) {
	s := writeSeed(t, seedDoc)
	require.NoError(t, os.Chmod(s.Path(), 0o600))

	doc, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(doc))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	fresh := NewStore(filepath.Join(t.TempDir(), "new.json"))
	require.NoError(t, fresh.Save(doc))
	info, err = os.Stat(fresh.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
