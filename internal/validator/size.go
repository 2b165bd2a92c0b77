package validator

import (
	"fmt"

	"aepaudit/pkg/model"
)

// PayloadSize 检查事件载荷的 UTF-8 字节数是否超出上限。
// 恰好等于上限算通过；无论通过与否都给出整体大小分布。
func PayloadSize(doc model.Document, opts Options) model.Verdict {
	limitKiB := opts.limit()
	limitBytes := int(limitKiB * 1024)
	posts := collectPosts(doc)

	var offenders []model.EventDetail
	stats := &model.SizeStats{}
	totalBytes := 0
	for i, ev := range posts {
		size := len(ev.body)
		totalBytes += size
		if i == 0 || size < stats.MinBytes {
			stats.MinBytes = size
		}
		if size > stats.MaxBytes {
			stats.MaxBytes = size
		}
		if size > limitBytes {
			offenders = append(offenders, model.EventDetail{
				PageURL:    ev.pageKey,
				RequestURL: ev.url,
				Timestamp:  ev.ts,
				EventType:  ev.fields.EventType,
				SizeBytes:  size,
				OverBy:     size - limitBytes,
			})
		}
	}
	if len(posts) > 0 {
		stats.AvgBytes = float64(totalBytes) / float64(len(posts))
	} else {
		stats = nil
	}

	v := model.Verdict{
		Counts: map[string]int{
			"total_events": len(posts),
			"oversized":    len(offenders),
		},
		Events:   offenders,
		LimitKiB: limitKiB,
		Stats:    stats,
	}
	if len(offenders) == 0 {
		v.Valid = true
		v.Message = fmt.Sprintf("✓ All %d payloads are under %g KB limit", len(posts), limitKiB)
	} else {
		v.Message = fmt.Sprintf("✗ %d of %d payloads exceed %g KB limit", len(offenders), len(posts), limitKiB)
	}
	return v
}
