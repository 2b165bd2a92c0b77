package validator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"aepaudit/internal/payload"
	"aepaudit/pkg/model"
)

// IdentityMode 身份校验的取值来源
type IdentityMode string

const (
	IdentityPostData IdentityMode = "post_data"
	IdentityAll      IdentityMode = "all"
)

const (
	DefaultWindowSeconds = 1.0
	DefaultLimitKiB      = 32.0
)

// Options 校验参数。零值即缺省：post_data 模式、1 秒窗口、32 KiB 上限。
type Options struct {
	Mode          IdentityMode
	WindowSeconds float64
	LimitKiB      float64
}

func (o Options) identityMode() IdentityMode {
	if o.Mode == IdentityAll {
		return IdentityAll
	}
	return IdentityPostData
}

func (o Options) window() float64 {
	if o.WindowSeconds > 0 {
		return o.WindowSeconds
	}
	return DefaultWindowSeconds
}

func (o Options) limit() float64 {
	if o.LimitKiB > 0 {
		return o.LimitKiB
	}
	return DefaultLimitKiB
}

// Func 校验器签名。只读取文档，从不因数据质量报错；
// 对同一份文档重复运行产出完全一致的结论。
type Func func(model.Document, Options) model.Verdict

// Descriptor 校验器描述
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Run         Func
}

// Registry 按固定顺序返回全部校验器
func Registry() []Descriptor {
	return []Descriptor{
		{
			ID:          "required_fields",
			Name:        "Required Fields",
			Description: "Validates that all events carry eventType, timestamp and identityMap",
			Run:         RequiredFields,
		},
		{
			ID:          "ecid_consistency",
			Name:        "ECID Consistency",
			Description: "Validates that a single ECID is used across the whole capture",
			Run:         ECIDConsistency,
		},
		{
			ID:          "page_view_integrity",
			Name:        "Page View Integrity",
			Description: "Validates that every page load fires exactly one page view event",
			Run:         PageViewIntegrity,
		},
		{
			ID:          "no_duplicate_events",
			Name:        "No Duplicate Events",
			Description: "Detects identical payloads fired repeatedly within a short window",
			Run:         NoDuplicateEvents,
		},
		{
			ID:          "payload_size",
			Name:        "Payload Size",
			Description: "Validates that event payloads stay under the size limit",
			Run:         PayloadSize,
		},
	}
}

// Lookup 按 ID 查找校验器
func Lookup(id string) (Descriptor, bool) {
	for _, d := range Registry() {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Select 按 ID 列表筛选校验器。空列表返回全部，未知 ID 报错。
func Select(ids []string) ([]Descriptor, error) {
	if len(ids) == 0 {
		return Registry(), nil
	}
	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		d, ok := Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown validator %q", id)
		}
		out = append(out, d)
	}
	return out, nil
}

// RunAll 并发运行一组校验器。
// 文档在运行期间只读共享，结果按传入顺序排列。
func RunAll(ctx context.Context, doc model.Document, descs []Descriptor, opts Options) []model.StageResult {
	results := make([]model.StageResult, len(descs))
	g, _ := errgroup.WithContext(ctx)
	for i := range descs {
		d := descs[i]
		g.Go(func() error {
			results[i] = model.StageResult{ID: d.ID, Name: d.Name, Verdict: d.Run(doc, opts)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// postEvent 一条携带报文体的 POST 分析事件
type postEvent struct {
	pageKey string
	url     string
	ts      float64
	body    string
	fields  payload.Fields
}

// collectPosts 按页面键、请求 URL 的字典序抽取全部 POST 事件，
// 顺序稳定是结论可复现的前提。
func collectPosts(doc model.Document) []postEvent {
	var out []postEvent
	for _, pageKey := range doc.SortedPages() {
		page := doc[pageKey]
		if page == nil {
			continue
		}
		for _, u := range page.SortedRequests() {
			ex := page.Requests[u]
			body, ok := ex.PostBody()
			if !ok {
				continue
			}
			out = append(out, postEvent{
				pageKey: pageKey,
				url:     u,
				ts:      ex.Request.Timestamp,
				body:    body,
				fields:  payload.Extract(body),
			})
		}
	}
	return out
}
