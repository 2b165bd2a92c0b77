package payload

import "github.com/tidwall/gjson"

const (
	pathEventType = "eventType"
	pathTimestamp = "timestamp"
	pathIdentity  = "identityMap"
	pathECID      = "identityMap.ECID.0.id"
	pathPageURL   = "web.webPageDetails.URL"

	nestedPrefix = "event.xdm."
)

// Fields 从单条事件载荷中提取出的关键字段。
// 缺失的字段保持零值，调用方据此判断字段是否存在。
type Fields struct {
	EventType   string
	Timestamp   string
	HasIdentity bool
	ECID        string
	PageURL     string
	ParseOK     bool
}

// Extract 解析事件载荷并提取关键字段。
// 每个字段先查 event.xdm 下的嵌套路径，再回落到同名顶层路径；
// 两处都缺失或为假值时取零值。载荷不可解析时所有字段为空，从不报错。
func Extract(raw string) Fields {
	var f Fields
	root := gjson.Parse(raw)
	if !gjson.Valid(raw) || !root.IsObject() {
		return f
	}
	f.ParseOK = true
	f.EventType = lookup(root, pathEventType).String()
	f.Timestamp = lookup(root, pathTimestamp).String()
	f.HasIdentity = lookup(root, pathIdentity).Exists()
	f.ECID = lookup(root, pathECID).String()
	f.PageURL = lookup(root, pathPageURL).String()
	return f
}

func lookup(root gjson.Result, path string) gjson.Result {
	if r := root.Get(nestedPrefix + path); truthy(r) {
		return r
	}
	if r := root.Get(path); truthy(r) {
		return r
	}
	return gjson.Result{}
}

// truthy 按宽松语义判断取值是否算"存在"：
// null、false、0、空串、空数组、空对象一律视为缺失。
func truthy(r gjson.Result) bool {
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		n := 0
		r.ForEach(func(_, _ gjson.Result) bool { n++; return false })
		return n > 0
	}
}
