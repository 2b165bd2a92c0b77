package traffic

import "strings"

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Clone 复制为普通 map，nil 安全
func (h Header) Clone() map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// PageContext 标识一次页面加载。
// ID 每次加载唯一，同一 URL 的两次加载互不混淆。
type PageContext struct {
	ID  string
	URL string
}

// EventKind 捕获事件类别
type EventKind string

const (
	KindRequest  EventKind = "request"
	KindResponse EventKind = "response"
	KindFailure  EventKind = "response_failure"
)

// RawEvent 采集端与关联引擎之间的中立事件模型。
// 请求与响应阶段共用一个结构，按 Kind 取用对应字段。
type RawEvent struct {
	Kind EventKind
	Page PageContext

	URL    string
	Method string

	// 请求阶段
	Headers     Header
	Body        *string
	HasPostData bool

	// 响应阶段
	Status  int
	Content *string

	// 失败阶段
	ErrorText string

	Timestamp float64
}

// NewRequest 构造请求阶段事件
func NewRequest(page PageContext, url, method string, ts float64) RawEvent {
	return RawEvent{Kind: KindRequest, Page: page, URL: url, Method: method, Headers: make(Header), Timestamp: ts}
}

// NewResponse 构造响应阶段事件
func NewResponse(page PageContext, url string, status int, ts float64) RawEvent {
	return RawEvent{Kind: KindResponse, Page: page, URL: url, Status: status, Headers: make(Header), Timestamp: ts}
}

// NewFailure 构造失败阶段事件
func NewFailure(page PageContext, url, errorText string, ts float64) RawEvent {
	return RawEvent{Kind: KindFailure, Page: page, URL: url, ErrorText: errorText, Timestamp: ts}
}
