package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrCategoryMismatch 持久化文档中的分类顺序/名称与配置不一致
	ErrCategoryMismatch = errors.New("category order mismatch")
	// ErrLocked 另一个采集进程正持有文档锁
	ErrLocked = errors.New("document is locked by another run")
)

// DocumentLoadError 文档缺失、不可读、不是合法 JSON 或与配置不匹配；致命，发生在任何写入之前
type DocumentLoadError struct {
	Path string
	Err  error
}

func (e *DocumentLoadError) Error() string {
	return fmt.Sprintf("load document %s: %v", e.Path, e.Err)
}

func (e *DocumentLoadError) Unwrap() error { return e.Err }

// DocumentWriteError 保存失败；磁盘上原有文件保持不变
type DocumentWriteError struct {
	Path string
	Err  error
}

func (e *DocumentWriteError) Error() string {
	return fmt.Sprintf("write document %s: %v", e.Path, e.Err)
}

func (e *DocumentWriteError) Unwrap() error { return e.Err }
