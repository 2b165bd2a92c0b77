package capture

import (
	"path/filepath"
	"strings"
	"testing"

	"aepaudit/pkg/traffic"
)

const wireDocument = `{
  "https://shop.example.com/": {
    "html": "<html><body>home</body></html>",
    "logs": ["log: analytics ready"],
    "networkRequests": {
      "https://edge.adobedc.net/ee/v1/collect": {
        "request": {
          "url": "https://edge.adobedc.net/ee/v1/collect",
          "method": "POST",
          "headers": {"content-type": "application/json"},
          "post_data": "{\"eventType\":\"web.webpagedetails.pageViews\"}",
          "timestamp": 1714557600.25
        },
        "response": {
          "status_code": 204,
          "headers": {"x-request-id": "abc"},
          "content": null,
          "timestamp": 1714557600.75
        }
      },
      "https://edge.adobedc.net/ee/v1/interact": {
        "request": null,
        "response": {
          "status_code": 200,
          "headers": {},
          "content": "{\"handle\":[]}",
          "timestamp": 1714557601.0
        }
      }
    }
  }
}`

func TestDecodeWireFormat(t *testing.T) {
	doc, err := Decode(strings.NewReader(wireDocument))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	page := doc["https://shop.example.com/"]
	if page == nil {
		t.Fatalf("page missing: %v", doc.SortedPages())
	}
	if page.HTML == "" || len(page.Logs) != 1 {
		t.Fatalf("html/logs not decoded: %+v", page)
	}
	full := page.Requests["https://edge.adobedc.net/ee/v1/collect"]
	if full.Request == nil || full.Response == nil {
		t.Fatalf("full exchange not decoded: %+v", full)
	}
	if body, ok := full.PostBody(); !ok || body != `{"eventType":"web.webpagedetails.pageViews"}` {
		t.Fatalf("post body = %q ok=%v", body, ok)
	}
	if full.Response.Content != nil {
		t.Fatalf("null content must decode to nil")
	}
	partial := page.Requests["https://edge.adobedc.net/ee/v1/interact"]
	if partial.Request != nil || partial.Response == nil {
		t.Fatalf("response-only exchange not decoded: %+v", partial)
	}
	if _, ok := partial.PostBody(); ok {
		t.Fatalf("response-only exchange has no post body")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := NewCorrelator(NewFilter([]string{"adobedc"}), nil, nil)
	pc := traffic.PageContext{ID: "load-1", URL: "https://shop.example.com/"}
	ev := traffic.NewRequest(pc, "https://edge.adobedc.net/ee/v1/collect", "POST", 10.5)
	ev.Body = strptr(`{"eventType":"x"}`)
	c.Add(ev)
	c.AttachHTML(pc, "<html></html>")

	path := filepath.Join(t.TempDir(), "requests.json")
	if err := Save(path, c.Finalize()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ex := doc["https://shop.example.com/"].Requests["https://edge.adobedc.net/ee/v1/collect"]
	if ex == nil || ex.Request == nil {
		t.Fatalf("round trip lost the exchange")
	}
	if *ex.Request.PostData != `{"eventType":"x"}` || ex.Request.Timestamp != 10.5 {
		t.Fatalf("round trip mutated the request: %+v", ex.Request)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("missing file must be a hard error")
	}
	if _, err := Decode(strings.NewReader("{broken")); err == nil {
		t.Fatalf("invalid JSON must be a hard error")
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	doc, err := Decode(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Decode empty: %v", err)
	}
	if len(doc) != 0 {
		t.Fatalf("empty document expected")
	}
	doc, err = Decode(strings.NewReader("null"))
	if err != nil || doc == nil {
		t.Fatalf("null document should decode to an empty document, err=%v", err)
	}
}
