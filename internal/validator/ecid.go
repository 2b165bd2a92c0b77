package validator

import (
	"fmt"
	"sort"
	"strings"

	"aepaudit/internal/payload"
	"aepaudit/pkg/model"
)

// ECIDConsistency 检查整份捕获中出现的 ECID 是否唯一。
// post_data 模式只信任 POST 报文体里的 identityMap；
// all 模式额外扫描 URL、请求/响应头和响应体中的任何 ECID 痕迹。
func ECIDConsistency(doc model.Document, opts Options) model.Verdict {
	if opts.identityMode() == IdentityAll {
		return ecidFromAnywhere(doc)
	}
	return ecidFromPostData(doc)
}

func ecidFromPostData(doc model.Document) model.Verdict {
	posts := collectPosts(doc)
	seen := map[string]bool{}
	var details []model.EventDetail
	withECID := 0

	for _, ev := range posts {
		id := ev.fields.ECID
		if id == "" {
			continue
		}
		withECID++
		seen[id] = true
		details = append(details, model.EventDetail{
			PageURL:    ev.pageKey,
			RequestURL: ev.url,
			Timestamp:  ev.ts,
			ECID:       id,
			Source:     "post_data",
		})
	}

	v := model.Verdict{
		Counts: map[string]int{
			"total_events": len(posts),
			"with_ecid":    withECID,
			"unique_ecids": len(seen),
		},
		ECIDs:  sortedKeys(seen),
		Events: details,
	}
	switch len(seen) {
	case 0:
		v.Valid = true
		v.Message = "⚠ No ECID found in POST data"
	case 1:
		v.Valid = true
		v.Message = fmt.Sprintf("✓ Consistent ECID across %d events: %s", withECID, v.ECIDs[0])
	default:
		v.Message = fmt.Sprintf("✗ Multiple ECIDs found: [%s]", strings.Join(v.ECIDs, ", "))
	}
	return v
}

func ecidFromAnywhere(doc model.Document) model.Verdict {
	seen := map[string]bool{}
	var details []model.EventDetail
	checked := 0
	withECID := 0

	for _, pageKey := range doc.SortedPages() {
		page := doc[pageKey]
		if page == nil {
			continue
		}
		for _, u := range page.SortedRequests() {
			ex := page.Requests[u]
			checked++
			id, source := scanExchange(ex)
			if id == "" {
				continue
			}
			withECID++
			seen[id] = true
			ts := 0.0
			if ex.Request != nil {
				ts = ex.Request.Timestamp
			} else if ex.Response != nil {
				ts = ex.Response.Timestamp
			}
			details = append(details, model.EventDetail{
				PageURL:    pageKey,
				RequestURL: u,
				Timestamp:  ts,
				ECID:       id,
				Source:     source,
			})
		}
	}

	v := model.Verdict{
		Counts: map[string]int{
			"total_exchanges": checked,
			"with_ecid":       withECID,
			"unique_ecids":    len(seen),
		},
		ECIDs:  sortedKeys(seen),
		Events: details,
	}
	switch len(seen) {
	case 0:
		v.Valid = true
		v.Message = "⚠ No ECID found in captured traffic"
	case 1:
		v.Valid = true
		v.Message = fmt.Sprintf("✓ Consistent ECID across %d exchanges: %s", withECID, v.ECIDs[0])
	default:
		v.Message = fmt.Sprintf("✗ Multiple ECIDs found: [%s]", strings.Join(v.ECIDs, ", "))
	}
	return v
}

// scanExchange 按固定来源顺序在一次往来中寻找第一个 ECID 痕迹
func scanExchange(ex *model.Exchange) (string, string) {
	if ex == nil {
		return "", ""
	}
	if ex.Request != nil {
		if id := payload.ScanECID(ex.Request.URL); id != "" {
			return id, "request_url"
		}
		if id := payload.ScanECID(headerBlob(ex.Request.Headers)); id != "" {
			return id, "request_headers"
		}
		if ex.Request.PostData != nil {
			if id := payload.ScanECID(*ex.Request.PostData); id != "" {
				return id, "post_data"
			}
		}
	}
	if ex.Response != nil {
		if id := payload.ScanECID(headerBlob(ex.Response.Headers)); id != "" {
			return id, "response_headers"
		}
		if ex.Response.Content != nil {
			if id := payload.ScanECID(*ex.Response.Content); id != "" {
				return id, "response_content"
			}
		}
	}
	return "", ""
}

func headerBlob(h map[string]string) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(h[k])
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
