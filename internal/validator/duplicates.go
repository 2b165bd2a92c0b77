package validator

import (
	"fmt"
	"sort"

	"aepaudit/internal/payload"
	"aepaudit/pkg/model"
)

// NoDuplicateEvents 检查时间窗口内是否出现载荷完全相同的事件。
// 事件跨页面全局按时间排序，以每个未归组事件为锚点向后扫描：
// 已归组事件跳过不计，首个超出窗口的未归组事件终止扫描，
// 窗口边界按 <= 计入。载荷相同按规整化哈希判定。
func NoDuplicateEvents(doc model.Document, opts Options) model.Verdict {
	window := opts.window()
	posts := collectPosts(doc)

	type entry struct {
		postEvent
		hash string
	}
	entries := make([]entry, 0, len(posts))
	for _, ev := range posts {
		entries = append(entries, entry{postEvent: ev, hash: payload.Hash(ev.body)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ts != entries[j].ts {
			return entries[i].ts < entries[j].ts
		}
		if entries[i].pageKey != entries[j].pageKey {
			return entries[i].pageKey < entries[j].pageKey
		}
		return entries[i].url < entries[j].url
	})

	grouped := make([]bool, len(entries))
	var groups []model.DuplicateGroup
	extra := 0

	for i := range entries {
		if grouped[i] {
			continue
		}
		members := []int{i}
		for j := i + 1; j < len(entries); j++ {
			if grouped[j] {
				continue
			}
			if entries[j].ts-entries[i].ts > window {
				break
			}
			if entries[j].hash == entries[i].hash {
				members = append(members, j)
				grouped[j] = true
			}
		}
		if len(members) < 2 {
			continue
		}
		evs := make([]model.EventDetail, 0, len(members))
		for _, m := range members {
			evs = append(evs, model.EventDetail{
				PageURL:    entries[m].pageKey,
				RequestURL: entries[m].url,
				Timestamp:  entries[m].ts,
				EventType:  entries[m].fields.EventType,
			})
		}
		groups = append(groups, model.DuplicateGroup{
			EventType:   entries[i].fields.EventType,
			PayloadHash: entries[i].hash,
			Count:       len(members),
			TimeSpan:    entries[members[len(members)-1]].ts - entries[i].ts,
			Events:      evs,
		})
		extra += len(members) - 1
	}

	v := model.Verdict{
		Counts: map[string]int{
			"total_events":     len(entries),
			"duplicate_groups": len(groups),
			"duplicate_events": extra,
		},
		Groups: groups,
		Window: window,
	}
	if len(groups) == 0 {
		v.Valid = true
		v.Message = fmt.Sprintf("✓ No duplicate events found (checked %d POST requests)", len(entries))
	} else {
		v.Message = fmt.Sprintf("✗ Found %d duplicate group(s) with %d duplicate event(s) within %gs window",
			len(groups), extra, window)
	}
	return v
}
