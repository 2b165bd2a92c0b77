package payload

import (
	"testing"

	"github.com/tidwall/sjson"
)

const basePayload = `{
  "event": {
    "xdm": {
      "eventType": "web.webpagedetails.pageViews",
      "timestamp": "2024-05-01T10:00:00Z",
      "identityMap": {"ECID": [{"id": "84930457123064867124", "primary": true}]},
      "web": {"webPageDetails": {"URL": "https://shop.example.com/"}}
    }
  }
}`

func mustSet(t *testing.T, raw, path string, value any) string {
	t.Helper()
	out, err := sjson.Set(raw, path, value)
	if err != nil {
		t.Fatalf("sjson.Set(%s): %v", path, err)
	}
	return out
}

func mustDelete(t *testing.T, raw, path string) string {
	t.Helper()
	out, err := sjson.Delete(raw, path)
	if err != nil {
		t.Fatalf("sjson.Delete(%s): %v", path, err)
	}
	return out
}

func TestExtractNestedFields(t *testing.T) {
	f := Extract(basePayload)
	if !f.ParseOK {
		t.Fatalf("ParseOK = false, want true")
	}
	if f.EventType != "web.webpagedetails.pageViews" {
		t.Fatalf("EventType = %q", f.EventType)
	}
	if f.Timestamp != "2024-05-01T10:00:00Z" {
		t.Fatalf("Timestamp = %q", f.Timestamp)
	}
	if !f.HasIdentity {
		t.Fatalf("HasIdentity = false, want true")
	}
	if f.ECID != "84930457123064867124" {
		t.Fatalf("ECID = %q", f.ECID)
	}
	if f.PageURL != "https://shop.example.com/" {
		t.Fatalf("PageURL = %q", f.PageURL)
	}
}

func TestExtractTopLevelFallback(t *testing.T) {
	raw := `{
	  "eventType": "commerce.purchases",
	  "timestamp": 1714557600,
	  "identityMap": {"ECID": [{"id": "111"}]},
	  "web": {"webPageDetails": {"URL": "https://shop.example.com/checkout"}}
	}`
	f := Extract(raw)
	if f.EventType != "commerce.purchases" {
		t.Fatalf("EventType = %q", f.EventType)
	}
	if f.Timestamp != "1714557600" {
		t.Fatalf("Timestamp = %q", f.Timestamp)
	}
	if !f.HasIdentity || f.ECID != "111" {
		t.Fatalf("identity not picked up from top level: %+v", f)
	}
	if f.PageURL != "https://shop.example.com/checkout" {
		t.Fatalf("PageURL = %q", f.PageURL)
	}
}

func TestExtractNestedWinsOverTopLevel(t *testing.T) {
	raw := mustSet(t, basePayload, "eventType", "top.level.type")
	f := Extract(raw)
	if f.EventType != "web.webpagedetails.pageViews" {
		t.Fatalf("EventType = %q, nested path should win", f.EventType)
	}
}

func TestExtractFalsyNestedFallsBack(t *testing.T) {
	raw := mustSet(t, basePayload, "event.xdm.eventType", "")
	raw = mustSet(t, raw, "eventType", "top.level.type")
	f := Extract(raw)
	if f.EventType != "top.level.type" {
		t.Fatalf("EventType = %q, empty nested value should fall back", f.EventType)
	}
}

func TestExtractFalsyValues(t *testing.T) {
	cases := []struct {
		name  string
		patch func(string) string
		check func(Fields) bool
	}{
		{"null eventType", func(s string) string { return mustSet(t, s, "event.xdm.eventType", nil) },
			func(f Fields) bool { return f.EventType == "" }},
		{"zero timestamp", func(s string) string { return mustSet(t, s, "event.xdm.timestamp", 0) },
			func(f Fields) bool { return f.Timestamp == "" }},
		{"false timestamp", func(s string) string { return mustSet(t, s, "event.xdm.timestamp", false) },
			func(f Fields) bool { return f.Timestamp == "" }},
		{"empty identityMap", func(s string) string {
			return mustSet(t, s, "event.xdm.identityMap", map[string]any{})
		}, func(f Fields) bool { return !f.HasIdentity && f.ECID == "" }},
		{"empty ECID list", func(s string) string {
			return mustSet(t, s, "event.xdm.identityMap", map[string]any{"ECID": []any{}})
		}, func(f Fields) bool { return f.HasIdentity && f.ECID == "" }},
		{"missing field", func(s string) string { return mustDelete(t, s, "event.xdm.eventType") },
			func(f Fields) bool { return f.EventType == "" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			base := mustDelete(t, basePayload, "eventType")
			f := Extract(c.patch(base))
			if !c.check(f) {
				t.Fatalf("unexpected fields: %+v", f)
			}
		})
	}
}

func TestExtractMalformed(t *testing.T) {
	for _, raw := range []string{"", "{not json", `"just a string"`, "[1,2,3]", "null"} {
		f := Extract(raw)
		if f.ParseOK {
			t.Fatalf("ParseOK = true for %q", raw)
		}
		if f.EventType != "" || f.Timestamp != "" || f.HasIdentity || f.ECID != "" {
			t.Fatalf("fields not empty for %q: %+v", raw, f)
		}
	}
}

func TestExtractFirstECIDEntry(t *testing.T) {
	raw := mustSet(t, basePayload, "event.xdm.identityMap.ECID.1", map[string]any{"id": "second"})
	f := Extract(raw)
	if f.ECID != "84930457123064867124" {
		t.Fatalf("ECID = %q, want first array entry", f.ECID)
	}
}

func TestScanECID(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"json key", `{"ecid": "12345678901234567890"}`, "12345678901234567890"},
		{"json key uppercase", `{"ECID":"abc-def"}`, "abc-def"},
		{"query param", "https://edge.adobedc.net/collect?ecid=98765&x=1", "98765"},
		{"query param uppercase", "ECID=77777&y=2", "77777"},
		{"dotted path", `experienceCloud.ecid: 445566`, "445566"},
		{"json key wins over query", `ecid=fromquery "ecid":"fromjson"`, "fromjson"},
		{"no match", "nothing to see here", ""},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ScanECID(c.text); got != c.want {
				t.Fatalf("ScanECID(%q) = %q, want %q", c.text, got, c.want)
			}
		})
	}
}
