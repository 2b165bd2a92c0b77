package validator

import (
	"fmt"

	"aepaudit/pkg/model"
)

const requiredFieldList = "eventType, timestamp, identityMap"

// RequiredFields 检查每条事件是否带齐 eventType、timestamp、identityMap。
// 报文体为空或不可解析的事件按三项全缺计。
func RequiredFields(doc model.Document, _ Options) model.Verdict {
	posts := collectPosts(doc)

	counts := map[string]int{
		"total_events":        len(posts),
		"with_all_required":   0,
		"missing_required":    0,
		"missing_eventType":   0,
		"missing_timestamp":   0,
		"missing_identityMap": 0,
	}
	var offenders []model.EventDetail

	for _, ev := range posts {
		var missing []string
		if ev.fields.EventType == "" {
			missing = append(missing, "eventType")
		}
		if ev.fields.Timestamp == "" {
			missing = append(missing, "timestamp")
		}
		if !ev.fields.HasIdentity {
			missing = append(missing, "identityMap")
		}
		if len(missing) == 0 {
			counts["with_all_required"]++
			continue
		}
		counts["missing_required"]++
		for _, m := range missing {
			counts["missing_"+m]++
		}
		offenders = append(offenders, model.EventDetail{
			PageURL:       ev.pageKey,
			RequestURL:    ev.url,
			Timestamp:     ev.ts,
			EventType:     ev.fields.EventType,
			MissingFields: missing,
			ParseError:    !ev.fields.ParseOK,
		})
	}

	v := model.Verdict{Counts: counts, Events: offenders}
	if counts["missing_required"] == 0 {
		v.Valid = true
		v.Message = fmt.Sprintf("✓ All %d events have required fields (%s)", len(posts), requiredFieldList)
	} else {
		v.Message = fmt.Sprintf("✗ %d of %d events missing required fields (%s)",
			counts["missing_required"], len(posts), requiredFieldList)
	}
	return v
}
