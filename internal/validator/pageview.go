package validator

import (
	"fmt"

	"aepaudit/pkg/model"
)

// PageViewType 页面浏览事件的事件类型
const PageViewType = "web.webpagedetails.pageViews"

// PageViewIntegrity 检查每次页面加载是否恰好发出一条页面浏览事件。
// 零条和多条都算缺陷，分别标记 no_page_view 与 multiple_page_views。
func PageViewIntegrity(doc model.Document, _ Options) model.Verdict {
	posts := collectPosts(doc)
	perPage := map[string][]model.EventDetail{}
	for _, ev := range posts {
		if ev.fields.EventType != PageViewType {
			continue
		}
		perPage[ev.pageKey] = append(perPage[ev.pageKey], model.EventDetail{
			PageURL:      ev.pageKey,
			RequestURL:   ev.url,
			Timestamp:    ev.ts,
			EventType:    ev.fields.EventType,
			EventPageURL: ev.fields.PageURL,
		})
	}

	var pages []model.PageDetail
	bad := 0
	for _, key := range doc.SortedPages() {
		events := perPage[key]
		status := "ok"
		switch {
		case len(events) == 0:
			status = "no_page_view"
		case len(events) > 1:
			status = "multiple_page_views"
		}
		if status != "ok" {
			bad++
		}
		pages = append(pages, model.PageDetail{
			PageURL: key,
			Status:  status,
			Counts:  map[string]int{"page_view_events": len(events)},
			Events:  events,
		})
	}

	v := model.Verdict{
		Counts: map[string]int{
			"total_pages":       len(doc),
			"pages_with_issues": bad,
		},
		Pages: pages,
	}
	if bad == 0 {
		v.Valid = true
		v.Message = fmt.Sprintf("✓ All %d pages have exactly 1 page view event", len(doc))
	} else {
		v.Message = fmt.Sprintf("✗ %d of %d pages have page view issues", bad, len(doc))
	}
	return v
}
