package capture

import (
	"fmt"
	"sync"

	"aepaudit/internal/logger"
	"aepaudit/pkg/model"
	"aepaudit/pkg/traffic"
)

// SideChannel 旁路报文体查询接口。
// 浏览器对 sendBeacon 不回传报文体时，由页面内钩子记录并经此接口找回。
type SideChannel interface {
	Lookup(url string) (string, bool)
}

// MemorySideChannel 进程内旁路存储
type MemorySideChannel struct {
	mu     sync.RWMutex
	bodies map[string]string
}

func NewMemorySideChannel() *MemorySideChannel {
	return &MemorySideChannel{bodies: make(map[string]string)}
}

func (m *MemorySideChannel) Put(url, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[url] = body
}

func (m *MemorySideChannel) Lookup(url string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bodies[url]
	return b, ok
}

// Stats 关联统计
type Stats struct {
	Total   int64 `json:"total"`
	Matched int64 `json:"matched"`
}

// Correlator 把零散的采集事件按页面加载归组，积累成捕获文档。
// 同一页面加载内按目标 URL 合并请求/响应两半，同名槽位后写覆盖。
type Correlator struct {
	mu     sync.Mutex
	filter *Filter
	side   SideChannel
	log    logger.Logger

	doc      model.Document
	keyByCtx map[string]string
	ctxByKey map[string]string
	stats    Stats
}

func NewCorrelator(f *Filter, side SideChannel, l logger.Logger) *Correlator {
	if l == nil {
		l = logger.NewNop()
	}
	return &Correlator{
		filter:   f,
		side:     side,
		log:      l,
		doc:      make(model.Document),
		keyByCtx: make(map[string]string),
		ctxByKey: make(map[string]string),
	}
}

// Add 接收一条采集事件。URL 未命中过滤器的事件直接丢弃。
func (c *Correlator) Add(ev traffic.RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Total++
	if c.filter != nil && !c.filter.Match(ev.URL) {
		return
	}
	c.stats.Matched++

	page := c.pageLocked(ev.Page)
	ex := page.Requests[ev.URL]
	if ex == nil {
		ex = &model.Exchange{}
		page.Requests[ev.URL] = ex
	}

	switch ev.Kind {
	case traffic.KindRequest:
		rec := &model.RequestRecord{
			URL:       ev.URL,
			Method:    ev.Method,
			Headers:   ev.Headers.Clone(),
			PostData:  ev.Body,
			Timestamp: ev.Timestamp,
		}
		if rec.PostData == nil && ev.HasPostData && c.side != nil {
			if body, ok := c.side.Lookup(ev.URL); ok {
				rec.PostData = &body
				c.log.Debug("旁路找回请求体", "url", ev.URL, "bytes", len(body))
			}
		}
		ex.Request = rec
	case traffic.KindResponse:
		ex.Response = &model.ResponseRecord{
			StatusCode: ev.Status,
			Headers:    ev.Headers.Clone(),
			Content:    ev.Content,
			Timestamp:  ev.Timestamp,
		}
	case traffic.KindFailure:
		ex.Failure = &model.FailureRecord{ErrorText: ev.ErrorText, Timestamp: ev.Timestamp}
	}
}

// AttachHTML 记录页面渲染结果
func (c *Correlator) AttachHTML(pc traffic.PageContext, html string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageLocked(pc).HTML = html
}

// AttachLogs 追加页面控制台输出
func (c *Correlator) AttachLogs(pc traffic.PageContext, logs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := c.pageLocked(pc)
	page.Logs = append(page.Logs, logs...)
}

// pageLocked 解析页面加载对应的文档键，必要时创建页面。
// 键被其他加载占用时从 " (#2)" 起向上探测。
func (c *Correlator) pageLocked(pc traffic.PageContext) *model.PageCapture {
	if key, ok := c.keyByCtx[pc.ID]; ok {
		return c.doc[key]
	}
	key := pc.URL
	for n := 2; ; n++ {
		owner, taken := c.ctxByKey[key]
		if !taken || owner == pc.ID {
			break
		}
		key = fmt.Sprintf("%s (#%d)", pc.URL, n)
	}
	c.keyByCtx[pc.ID] = key
	c.ctxByKey[key] = pc.ID
	page := &model.PageCapture{Logs: []string{}, Requests: make(map[string]*model.Exchange)}
	c.doc[key] = page
	c.log.Debug("登记页面加载", "page", key)
	return page
}

// Stats 返回当前关联统计
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Finalize 结束采集并返回捕获文档。可重复调用，结果一致。
func (c *Correlator) Finalize() model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}
