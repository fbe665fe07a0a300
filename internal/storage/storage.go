package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// 超过该时长的锁文件视为上次运行崩溃遗留
const defaultStaleLock = 30 * time.Minute

var statLock = os.Stat

// Store 基于单个 JSON 文件的文档存储：整文件读取，整文件原子替换
type Store struct {
	path      string
	staleLock time.Duration
}

func NewStore(path string) *Store {
	return &Store{path: path, staleLock: defaultStaleLock}
}

func (s *Store) Path() string {
	return s.path
}

// ReadRaw 返回文件原始内容，供展示端直接下发
func (s *Store) ReadRaw() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &DocumentLoadError{Path: s.path, Err: err}
	}
	return data, nil
}

// Load 读取并解析文档
func (s *Store) Load() (*Document, error) {
	data, err := s.ReadRaw()
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, &DocumentLoadError{Path: s.path, Err: err}
	}
	return doc, nil
}

// Save 先写同目录临时文件并 fsync，再 rename 覆盖，保证不会留下写了一半的文档
func (s *Store) Save(doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return &DocumentWriteError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &DocumentWriteError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &DocumentWriteError{Path: s.path, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	// 沿用原文件权限；首次写入用 0644
	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &DocumentWriteError{Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

// Lock 获取咨询锁（<path>.lock，O_EXCL 创建）。返回的 unlock 负责删除锁文件。
func (s *Store) Lock() (func(), error) {
	lp := s.lockPath()
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(lp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "pid=%d at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			_ = f.Close()
			return func() { _ = os.Remove(lp) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, &DocumentLoadError{Path: s.path, Err: fmt.Errorf("create lock: %w", err)}
		}

		info, statErr := statLock(lp)
		if errors.Is(statErr, os.ErrNotExist) {
			// 持有者刚好释放了锁，直接重试
			continue
		}
		if statErr != nil || time.Since(info.ModTime()) < s.staleLock {
			break
		}
		// 过期锁：删除后重试一次
		_ = os.Remove(lp)
	}
	return nil, &DocumentLoadError{Path: s.path, Err: ErrLocked}
}

// Update 在锁内完成 读取 -> fn 修改 -> 整体写回。
// fn 返回错误时不写入任何内容。
func (s *Store) Update(fn func(doc *Document) error) (*Document, error) {
	unlock, err := s.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		var le *DocumentLoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = s.path
		}
		return nil, err
	}
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
