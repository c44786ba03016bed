package search

import "fmt"

// ValidationError 请求参数非法（调用方错误，4xx 级别），绝不重试。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("search: invalid %s: %s", e.Field, e.Reason)
}

// DecodeError 游标格式损坏或被篡改。按「重新从第一页开始」处理
// 而非硬失败：静默重启分页比拒绝请求伤害更小。
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "search: cursor decode failed: " + e.Reason
}

// UpstreamUnavailableError embedding/rerank 后端超时或失败。
// 有限重试后上浮给调用方，请求整体中止——绝不把残缺页伪装成完整结果。
type UpstreamUnavailableError struct {
	Op  string // embed | rerank
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("search: upstream %s unavailable: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }
