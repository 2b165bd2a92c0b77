package model

// Verdict 单个校验器的结论。产出后只读。
// 各校验器只填写与自己相关的字段，其余保持零值不参与序列化。
type Verdict struct {
	Valid    bool             `json:"valid"`
	Message  string           `json:"message"`
	Counts   map[string]int   `json:"counts,omitempty"`
	Pages    []PageDetail     `json:"pages,omitempty"`
	Events   []EventDetail    `json:"events,omitempty"`
	Groups   []DuplicateGroup `json:"duplicate_groups,omitempty"`
	ECIDs    []string         `json:"ecids,omitempty"`
	Window   float64          `json:"window_seconds,omitempty"`
	LimitKiB float64          `json:"limit_kib,omitempty"`
	Stats    *SizeStats       `json:"stats,omitempty"`
}

// PageDetail 按页面粒度的校验明细
type PageDetail struct {
	PageURL string         `json:"page_url"`
	Status  string         `json:"status,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
	Events  []EventDetail  `json:"events,omitempty"`
}

// EventDetail 单个事件的校验明细
type EventDetail struct {
	PageURL       string   `json:"page_url,omitempty"`
	RequestURL    string   `json:"request_url,omitempty"`
	Timestamp     float64  `json:"timestamp"`
	EventType     string   `json:"event_type,omitempty"`
	EventPageURL  string   `json:"event_page_url,omitempty"`
	ECID          string   `json:"ecid,omitempty"`
	Source        string   `json:"source,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
	SizeBytes     int      `json:"size_bytes,omitempty"`
	OverBy        int      `json:"over_by,omitempty"`
	ParseError    bool     `json:"parse_error,omitempty"`
}

// DuplicateGroup 一组在时间窗口内命中相同载荷哈希的事件
type DuplicateGroup struct {
	EventType   string        `json:"event_type"`
	PayloadHash string        `json:"payload_hash"`
	Count       int           `json:"count"`
	TimeSpan    float64       `json:"time_span_seconds"`
	Events      []EventDetail `json:"events"`
}

// SizeStats 载荷大小统计
type SizeStats struct {
	MinBytes int     `json:"min_bytes"`
	MaxBytes int     `json:"max_bytes"`
	AvgBytes float64 `json:"avg_bytes"`
}

// StageResult 带校验器标识的单项结论
type StageResult struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Verdict Verdict `json:"verdict"`
}

// Summary 整套校验的汇总
type Summary struct {
	Passed  int           `json:"passed"`
	Total   int           `json:"total"`
	Valid   bool          `json:"valid"`
	Results []StageResult `json:"results"`
}
