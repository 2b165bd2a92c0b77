package payload

import "regexp"

// 文本中可能出现的 ECID 形态，按优先级排列
var ecidPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"ecid"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`(?i)ecid=([^&\s"]+)`),
	regexp.MustCompile(`(?i)experienceCloud\.ecid["\s:]+([^",\s]+)`),
}

// ScanECID 在任意文本中按固定优先级扫描 ECID 标识。
// 依次尝试 JSON 键、URL 查询参数、点号路径三种形态，全部落空返回空串。
func ScanECID(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range ecidPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
