// Package timetable turns the raw per-week class-time rows returned by the
// enrollment service into a compact weekly schedule description.
package timetable

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RawSession is one class-time row as delivered by the remote service.
// Numeric fields arrive as decimal strings and are parsed here.
type RawSession struct {
	Week     string   // teaching week, e.g. "3"
	Weekday  string   // 1..7, Monday..Sunday
	Sessions []string // period indices within the weekday, e.g. ["1","2"]
	Location string
	Teacher  string
	Term     string
	Style    string
	Course   string
}

// Schedule is the consolidated result. Callers distinguish success from
// failure by checking whether the descriptive fields are populated; parse
// problems land in Diagnostic instead of an error return.
type Schedule struct {
	Course       string
	Term         string
	Style        string
	Teachers     string // distinct names in order of first appearance, comma-joined
	LocationKind string
	Location     string
	Times        string
	Diagnostic   string
}

var weekdayNames = [8]string{"", "一", "二", "三", "四", "五", "六", "日"}

type span struct {
	week     int
	weekday  int
	start    int
	end      int
	location string
}

// Consolidate merges, groups and range-compresses the raw rows into a
// human-readable weekly description. Empty input yields a zero Schedule.
func Consolidate(rows []RawSession) Schedule {
	if len(rows) == 0 {
		return Schedule{}
	}

	spans := make([]span, 0, len(rows))
	locations := make([]string, 0, 1)
	seenLoc := make(map[string]bool)
	var teachers []string
	seenTeacher := make(map[string]bool)

	for _, r := range rows {
		s, err := parseSpan(r)
		if err != nil {
			return Schedule{Diagnostic: err.Error()}
		}
		s.location = r.Location
		spans = append(spans, s)
		if !seenLoc[r.Location] {
			seenLoc[r.Location] = true
			locations = append(locations, r.Location)
		}
		for _, name := range strings.Split(r.Teacher, ",") {
			name = strings.TrimSpace(name)
			if name == "" || seenTeacher[name] {
				continue
			}
			seenTeacher[name] = true
			teachers = append(teachers, name)
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].week != spans[j].week {
			return spans[i].week < spans[j].week
		}
		if spans[i].weekday != spans[j].weekday {
			return spans[i].weekday < spans[j].weekday
		}
		return spans[i].start < spans[j].start
	})

	out := Schedule{
		Course:   rows[0].Course,
		Term:     rows[0].Term,
		Style:    rows[0].Style,
		Teachers: strings.Join(teachers, ","),
		// When rows disagree on location, the earliest span in sorted
		// order decides which one is reported.
		Location: spans[0].location,
		Times:    describe(mergeAbutting(spans)),
	}
	if out.Location == "" {
		out.LocationKind = "线上"
	} else {
		out.LocationKind = "教室"
	}
	if len(locations) > 1 {
		out.Diagnostic = fmt.Sprintf("%d distinct locations, kept %q", len(locations), out.Location)
	}
	return out
}

func parseSpan(r RawSession) (span, error) {
	week, err := strconv.Atoi(strings.TrimSpace(r.Week))
	if err != nil {
		return span{}, fmt.Errorf("bad week %q: %w", r.Week, err)
	}
	weekday, err := strconv.Atoi(strings.TrimSpace(r.Weekday))
	if err != nil {
		return span{}, fmt.Errorf("bad weekday %q: %w", r.Weekday, err)
	}
	if weekday < 1 || weekday > 7 {
		return span{}, fmt.Errorf("weekday %d out of range", weekday)
	}
	if len(r.Sessions) == 0 {
		return span{}, fmt.Errorf("week %d weekday %d: no sessions", week, weekday)
	}
	// Only min and max survive; a gap inside one row's session list is
	// not detectable downstream.
	s := span{week: week, weekday: weekday}
	for i, raw := range r.Sessions {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return span{}, fmt.Errorf("bad session %q: %w", raw, err)
		}
		if i == 0 || n < s.start {
			s.start = n
		}
		if i == 0 || n > s.end {
			s.end = n
		}
	}
	return s, nil
}

// mergeAbutting joins sorted spans that share week and weekday when the next
// span starts exactly one session after the previous one ends.
func mergeAbutting(spans []span) []span {
	var merged []span
	for _, s := range spans {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if prev.week == s.week && prev.weekday == s.weekday && s.start == prev.end+1 {
				prev.end = s.end
				continue
			}
		}
		merged = append(merged, s)
	}
	return merged
}

type groupKey struct {
	weekday int
	start   int
	end     int
}

// describe groups merged spans by (weekday, start, end) in first-seen order,
// compresses each group's week list into contiguous ranges and renders the
// final description.
func describe(merged []span) string {
	var order []groupKey
	weeksByKey := make(map[groupKey][]int)
	for _, s := range merged {
		k := groupKey{weekday: s.weekday, start: s.start, end: s.end}
		if _, ok := weeksByKey[k]; !ok {
			order = append(order, k)
		}
		weeksByKey[k] = append(weeksByKey[k], s.week)
	}

	parts := make([]string, 0, len(order))
	for _, k := range order {
		weeks := weeksByKey[k]
		sort.Ints(weeks)
		parts = append(parts, fmt.Sprintf("%s 周%s %d~%d节",
			weekRanges(weeks), weekdayNames[k.weekday], k.start, k.end))
	}
	return strings.Join(parts, ", ")
}

// weekRanges compresses a sorted week list into "第1~3周,第5周" form.
func weekRanges(weeks []int) string {
	var b strings.Builder
	for i := 0; i < len(weeks); {
		j := i
		for j+1 < len(weeks) && weeks[j+1] == weeks[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if i == j {
			fmt.Fprintf(&b, "第%d周", weeks[i])
		} else {
			fmt.Fprintf(&b, "第%d~%d周", weeks[i], weeks[j])
		}
		i = j + 1
	}
	return b.String()
}
