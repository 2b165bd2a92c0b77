package capture

import (
	"testing"

	"aepaudit/pkg/traffic"
)

const beaconURL = "https://edge.adobedc.net/ee/v1/collect"

func strptr(s string) *string { return &s }

func newTestCorrelator(side SideChannel) *Correlator {
	return NewCorrelator(NewFilter([]string{"adobedc\\.net"}), side, nil)
}

func TestCorrelatorMergesExchange(t *testing.T) {
	c := newTestCorrelator(nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}

	req := traffic.NewRequest(pc, beaconURL, "POST", 100.5)
	req.Headers.Set("Content-Type", "application/json")
	req.Body = strptr(`{"eventType":"x"}`)
	c.Add(req)

	resp := traffic.NewResponse(pc, beaconURL, 204, 100.9)
	resp.Headers.Set("X-Request-Id", "abc")
	c.Add(resp)

	doc := c.Finalize()
	page, ok := doc["https://shop.example.com/"]
	if !ok {
		t.Fatalf("page key missing, got %v", doc.SortedPages())
	}
	ex := page.Requests[beaconURL]
	if ex == nil || ex.Request == nil || ex.Response == nil {
		t.Fatalf("exchange not merged: %+v", ex)
	}
	if ex.Request.Method != "POST" || *ex.Request.PostData != `{"eventType":"x"}` {
		t.Fatalf("request record wrong: %+v", ex.Request)
	}
	if ex.Request.Headers["content-type"] != "application/json" {
		t.Fatalf("request headers wrong: %v", ex.Request.Headers)
	}
	if ex.Response.StatusCode != 204 || ex.Response.Timestamp != 100.9 {
		t.Fatalf("response record wrong: %+v", ex.Response)
	}
}

func TestCorrelatorLastWriteWins(t *testing.T) {
	c := newTestCorrelator(nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}

	first := traffic.NewRequest(pc, beaconURL, "POST", 1.0)
	first.Body = strptr("first")
	c.Add(first)
	second := traffic.NewRequest(pc, beaconURL, "POST", 2.0)
	second.Body = strptr("second")
	c.Add(second)

	ex := c.Finalize()["https://shop.example.com/"].Requests[beaconURL]
	if *ex.Request.PostData != "second" || ex.Request.Timestamp != 2.0 {
		t.Fatalf("last write should win: %+v", ex.Request)
	}
}

func TestCorrelatorPartialExchanges(t *testing.T) {
	c := newTestCorrelator(nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}

	c.Add(traffic.NewResponse(pc, beaconURL, 200, 3.0))
	c.Add(traffic.NewFailure(pc, beaconURL+"?x=1", "net::ERR_ABORTED", 4.0))

	page := c.Finalize()["https://shop.example.com/"]
	respOnly := page.Requests[beaconURL]
	if respOnly.Request != nil || respOnly.Response == nil {
		t.Fatalf("response-only exchange expected: %+v", respOnly)
	}
	failed := page.Requests[beaconURL+"?x=1"]
	if failed.Failure == nil || failed.Failure.ErrorText != "net::ERR_ABORTED" {
		t.Fatalf("failure record expected: %+v", failed)
	}
}

func TestCorrelatorPageKeyCollision(t *testing.T) {
	c := newTestCorrelator(nil)
	url := "https://shop.example.com/"
	first := traffic.PageContext{ID: "load-1", URL: url}
	second := traffic.PageContext{ID: "load-2", URL: url}
	third := traffic.PageContext{ID: "load-3", URL: url}

	c.Add(traffic.NewRequest(first, beaconURL, "POST", 1.0))
	c.Add(traffic.NewRequest(second, beaconURL, "POST", 2.0))
	c.Add(traffic.NewRequest(third, beaconURL, "POST", 3.0))
	// 同一次加载的后续事件仍落在原键下
	c.Add(traffic.NewResponse(second, beaconURL, 204, 2.5))

	doc := c.Finalize()
	want := []string{url, url + " (#2)", url + " (#3)"}
	got := doc.SortedPages()
	if len(got) != 3 {
		t.Fatalf("pages = %v", got)
	}
	for _, k := range want {
		if _, ok := doc[k]; !ok {
			t.Fatalf("missing page key %q in %v", k, got)
		}
	}
	if doc[url+" (#2)"].Requests[beaconURL].Response == nil {
		t.Fatalf("second load should have received its response")
	}
}

func TestCorrelatorSideChannel(t *testing.T) {
	side := NewMemorySideChannel()
	side.Put(beaconURL, `{"eventType":"beacon"}`)
	c := newTestCorrelator(side)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}

	ev := traffic.NewRequest(pc, beaconURL, "POST", 1.0)
	ev.HasPostData = true // body 被浏览器丢弃
	c.Add(ev)

	miss := traffic.NewRequest(pc, beaconURL+"?miss=1", "POST", 2.0)
	miss.HasPostData = true
	c.Add(miss)

	page := c.Finalize()["https://shop.example.com/"]
	hit := page.Requests[beaconURL]
	if hit.Request.PostData == nil || *hit.Request.PostData != `{"eventType":"beacon"}` {
		t.Fatalf("side channel body not recovered: %+v", hit.Request)
	}
	if page.Requests[beaconURL+"?miss=1"].Request.PostData != nil {
		t.Fatalf("side channel miss must leave post_data null")
	}
}

func TestCorrelatorFilterDropsTraffic(t *testing.T) {
	c := newTestCorrelator(nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}

	c.Add(traffic.NewRequest(pc, "https://cdn.example.com/app.js", "GET", 1.0))
	c.Add(traffic.NewRequest(pc, beaconURL, "POST", 2.0))

	doc := c.Finalize()
	if len(doc["https://shop.example.com/"].Requests) != 1 {
		t.Fatalf("filtered traffic must not be recorded: %v", doc)
	}
	st := c.Stats()
	if st.Total != 2 || st.Matched != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCorrelatorAttachWithoutRequests(t *testing.T) {
	c := newTestCorrelator(nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/empty"}
	c.AttachHTML(pc, "<html></html>")
	c.AttachLogs(pc, []string{"log: ready"})

	page := c.Finalize()["https://shop.example.com/empty"]
	if page == nil || page.HTML != "<html></html>" {
		t.Fatalf("page without traffic should still be recorded")
	}
	if len(page.Logs) != 1 || page.Logs[0] != "log: ready" {
		t.Fatalf("logs = %v", page.Logs)
	}
	if len(page.Requests) != 0 {
		t.Fatalf("requests should be empty")
	}
}

func TestCorrelatorFinalizeIdempotent(t *testing.T) {
	c := newTestCorrelator(nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}
	c.Add(traffic.NewRequest(pc, beaconURL, "POST", 1.0))

	a := c.Finalize()
	b := c.Finalize()
	if len(a) != len(b) {
		t.Fatalf("Finalize must be stable")
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			t.Fatalf("Finalize results differ at %q", k)
		}
	}
}
