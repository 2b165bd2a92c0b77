package capture

import (
	"regexp"
	"strings"
)

// DefaultPatterns 常见分析采集端点的缺省匹配模式
var DefaultPatterns = []string{
	"adobedc.net",
	"omtrdc.net",
	"experienceedge",
	"launch-",
}

type matcher struct {
	re  *regexp.Regexp
	lit string
}

// Filter 按 URL 决定一次网络往来是否属于待审计流量。
// 每个模式优先按正则编译，编译失败退化为子串匹配；多个模式取并集。
// 空模式列表不命中任何 URL。
type Filter struct {
	matchers []matcher
}

func NewFilter(patterns []string) *Filter {
	f := &Filter{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			f.matchers = append(f.matchers, matcher{re: re})
		} else {
			f.matchers = append(f.matchers, matcher{lit: strings.ToLower(p)})
		}
	}
	return f
}

// Match 判断 URL 是否命中任一模式
func (f *Filter) Match(url string) bool {
	for i := range f.matchers {
		m := &f.matchers[i]
		if m.re != nil {
			if m.re.MatchString(url) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(url), m.lit) {
			return true
		}
	}
	return false
}
