package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/LJTian/AIUsageHub/internal/config"
)

// ErrUnexpectedStatus 数据源返回了非 2xx 状态
var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError 数据源返回的具体状态码，errors.Is(err, ErrUnexpectedStatus) 成立
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v %d", ErrUnexpectedStatus, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

// Permanent 4xx 说明页面本身不可用，换一种方式抓取也没有意义
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500
}

// FetchError 单个数据源抓取失败；调用方只记录并跳过，不中断整轮采集
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher 抽象一种取回页面原文的方式
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, src config.Source) (string, error)
}

func fetchErr(src config.Source, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Source: src.Name, Err: err}
}

const defaultUserAgent = "Mozilla/5.0 (compatible; AIUsageHubBot/1.0)"
