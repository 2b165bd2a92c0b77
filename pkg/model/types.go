package model

import "sort"

type RunID string
type PageKey string

// RunStatus 运行状态
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RequestRecord 捕获到的请求记录（落盘格式）
type RequestRecord struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	PostData  *string           `json:"post_data"`
	Timestamp float64           `json:"timestamp"`
}

// ResponseRecord 捕获到的响应记录（落盘格式）
type ResponseRecord struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Content    *string           `json:"content"`
	Timestamp  float64           `json:"timestamp"`
}

// FailureRecord 请求失败记录
type FailureRecord struct {
	ErrorText string  `json:"error_text"`
	Timestamp float64 `json:"timestamp"`
}

// Exchange 同一目标 URL 上的一次请求/响应往来。
// 两侧均可单独缺失：只看到请求或只看到响应都是合法的部分捕获。
type Exchange struct {
	Request  *RequestRecord  `json:"request"`
	Response *ResponseRecord `json:"response"`
	Failure  *FailureRecord  `json:"response_failure,omitempty"`
}

// PostBody 返回 POST 请求携带的报文体。
// 仅当请求存在、方法为 POST 且 post_data 字段非 null 时命中；
// 空字符串也算有报文体（内容缺陷由校验器判定）。
func (e *Exchange) PostBody() (string, bool) {
	if e == nil || e.Request == nil {
		return "", false
	}
	if e.Request.Method != "POST" || e.Request.PostData == nil {
		return "", false
	}
	return *e.Request.PostData, true
}

// PageCapture 单次页面加载捕获到的全部内容
type PageCapture struct {
	HTML     string               `json:"html"`
	Logs     []string             `json:"logs"`
	Requests map[string]*Exchange `json:"networkRequests"`
}

// SortedRequests 返回按字典序排列的请求 URL 列表
func (p *PageCapture) SortedRequests() []string {
	urls := make([]string, 0, len(p.Requests))
	for u := range p.Requests {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Document 一次审计运行的完整捕获文档。
// 键为页面 URL；同一 URL 的第二次加载起追加 " (#N)" 后缀。
type Document map[string]*PageCapture

// SortedPages 返回按字典序排列的页面键列表
func (d Document) SortedPages() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunConfig 一次抓取+校验运行的输入
type RunConfig struct {
	TargetURL  string   `json:"url"`
	Validators []string `json:"validators,omitempty"`
	MaxPages   int      `json:"max_pages,omitempty"`
	MaxDepth   int      `json:"max_depth,omitempty"`
	Patterns   []string `json:"patterns,omitempty"`
	Window     float64  `json:"window_seconds,omitempty"`
	LimitKiB   float64  `json:"limit_kib,omitempty"`
	ECIDMode   string   `json:"ecid_mode,omitempty"`
}

// ValidatorInfo 校验器元信息
type ValidatorInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StatusUpdate 运行过程中的阶段状态广播
type StatusUpdate struct {
	Type      string         `json:"type"`
	Stage     string         `json:"stage"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}
