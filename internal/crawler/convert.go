package crawler

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"aepaudit/pkg/traffic"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
)

// headersToMap 把 CDP 原始头部 JSON 转为中立 Header 模型
func headersToMap(raw network.Headers) traffic.Header {
	h := make(traffic.Header)
	if len(raw) == 0 {
		return h
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return h
	}
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// decodeBody 按需对响应体做 base64 解码，解码失败时保留原文
func decodeBody(body string, base64Encoded bool) string {
	if !base64Encoded {
		return body
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return body
	}
	return string(b)
}

// remoteObjectText 把 Runtime 远程对象转成可读文本
func remoteObjectText(o runtime.RemoteObject) string {
	if len(o.Value) > 0 {
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
		return string(o.Value)
	}
	if o.Description != nil {
		return *o.Description
	}
	return o.Type
}

// consoleLine 把一条控制台调用压成单行文本
func consoleLine(typ string, args []runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, remoteObjectText(a))
	}
	return "[" + typ + "] " + strings.Join(parts, " ")
}

// normalizeURL 规整待入队的链接：只接受 http(s)，去掉片段，
// 根路径的孤立斜杠视作无路径。返回 false 表示链接不可入队。
func normalizeURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}
	return u.String(), true
}

// hostOf 返回链接的主机部分，解析失败时为空串
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// sameHost 判断链接是否与种子页面同主机（含端口，忽略大小写）
func sameHost(seedHost, raw string) bool {
	return strings.EqualFold(seedHost, hostOf(raw))
}
