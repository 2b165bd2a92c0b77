package validator

import (
	"testing"

	"github.com/tidwall/sjson"

	"aepaudit/pkg/model"
)

func TestPageViewExactlyOnePerPage(t *testing.T) {
	doc := model.Document{}
	addPost(doc, "https://a.example.com/", collectURL, pageView(t, "e-1"), 1.0)
	addPost(doc, "https://b.example.com/", collectURL+"?n=2", pageView(t, "e-1"), 2.0)
	// 其他事件类型不参与统计
	addPost(doc, "https://a.example.com/", collectURL+"?n=3", eventPayload(t, "commerce.purchases", "2024-05-01T10:00:03Z", "e-1"), 3.0)

	v := PageViewIntegrity(doc, Options{})
	if !v.Valid {
		t.Fatalf("verdict invalid: %s", v.Message)
	}
	if v.Message != "✓ All 2 pages have exactly 1 page view event" {
		t.Fatalf("message = %q", v.Message)
	}
	for _, p := range v.Pages {
		if p.Status != "ok" || p.Counts["page_view_events"] != 1 {
			t.Fatalf("page detail = %+v", p)
		}
	}
}

func TestPageViewMissing(t *testing.T) {
	doc := model.Document{}
	addPost(doc, "https://a.example.com/", collectURL, pageView(t, "e-1"), 1.0)
	addPost(doc, "https://b.example.com/", collectURL+"?n=2", eventPayload(t, "commerce.purchases", "2024-05-01T10:00:02Z", "e-1"), 2.0)

	v := PageViewIntegrity(doc, Options{})
	if v.Valid {
		t.Fatalf("missing page view must fail")
	}
	if v.Message != "✗ 1 of 2 pages have page view issues" {
		t.Fatalf("message = %q", v.Message)
	}
	var bad *model.PageDetail
	for i := range v.Pages {
		if v.Pages[i].PageURL == "https://b.example.com/" {
			bad = &v.Pages[i]
		}
	}
	if bad == nil || bad.Status != "no_page_view" || bad.Counts["page_view_events"] != 0 {
		t.Fatalf("page detail = %+v", bad)
	}
}

func TestPageViewDuplicated(t *testing.T) {
	doc := model.Document{}
	addPost(doc, "https://a.example.com/", collectURL+"?n=1", pageView(t, "e-1"), 1.0)
	addPost(doc, "https://a.example.com/", collectURL+"?n=2", pageView(t, "e-1"), 1.5)

	v := PageViewIntegrity(doc, Options{})
	if v.Valid {
		t.Fatalf("double page view must fail")
	}
	if v.Pages[0].Status != "multiple_page_views" || v.Pages[0].Counts["page_view_events"] != 2 {
		t.Fatalf("page detail = %+v", v.Pages[0])
	}
}

func TestPageViewSecondLoadIsOwnPage(t *testing.T) {
	doc := model.Document{}
	addPost(doc, "https://a.example.com/", collectURL, pageView(t, "e-1"), 1.0)
	// 同一 URL 的第二次加载（后缀键）没有发出页面浏览事件
	addPost(doc, "https://a.example.com/ (#2)", collectURL+"?n=2", eventPayload(t, "commerce.purchases", "2024-05-01T10:00:05Z", "e-1"), 5.0)

	v := PageViewIntegrity(doc, Options{})
	if v.Valid || v.Counts["pages_with_issues"] != 1 {
		t.Fatalf("suffixed page key must be validated on its own: %+v", v)
	}
}

func TestPageViewEventPageURLDetail(t *testing.T) {
	body, err := sjson.Set(pageView(t, "e-1"), "event.xdm.web.webPageDetails.URL", "https://declared.example.com/")
	if err != nil {
		t.Fatalf("sjson: %v", err)
	}
	doc := model.Document{}
	addPost(doc, "https://a.example.com/", collectURL, body, 1.0)

	v := PageViewIntegrity(doc, Options{})
	if len(v.Pages) != 1 || len(v.Pages[0].Events) != 1 {
		t.Fatalf("pages = %+v", v.Pages)
	}
	if v.Pages[0].Events[0].EventPageURL != "https://declared.example.com/" {
		t.Fatalf("event page url = %q", v.Pages[0].Events[0].EventPageURL)
	}
}

func TestPageViewEmptyDocument(t *testing.T) {
	v := PageViewIntegrity(model.Document{}, Options{})
	if !v.Valid || v.Message != "✓ All 0 pages have exactly 1 page view event" {
		t.Fatalf("empty document verdict = %+v", v)
	}
}
