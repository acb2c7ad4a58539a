package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Term struct {
	Term             string `json:"term"`
	TermDesc         string `json:"term_desc"`
	RegistrationOpen bool   `json:"registration_open"`
}

type Course struct {
	Subject            string `json:"subject"`
	SubjectDescription string `json:"subject_description"`
	SubjectCourse      string `json:"subject_course"`
	CourseTitle        string `json:"course_title"`
	CourseNumber       string `json:"course_number"`
}

// Section is one scheduled offering of a course. CourseReferenceNumber is
// unique within a term and is the key used for alert subscriptions.
type Section struct {
	Term                    string        `json:"term"`
	TermDesc                string        `json:"term_desc"`
	CourseReferenceNumber   string        `json:"course_reference_number"`
	Course                  string        `json:"course"`
	ScheduleTypeDescription string        `json:"schedule_type_description"`
	SequenceNumber          string        `json:"sequence_number"`
	CampusDescription       string        `json:"campus_description"`
	PartOfTerm              string        `json:"part_of_term"`
	MeetingTimes            []MeetingTime `json:"meeting_times"`
}

// MeetingTime is a weekly window; times are 24-hour "HHMM" strings and days
// are lowercase weekday names.
type MeetingTime struct {
	BeginTime string   `json:"begin_time"`
	EndTime   string   `json:"end_time"`
	Days      []string `json:"days"`
}

// Schedule types as reported by the registrar.
const (
	ScheduleLecture    = "Lecture"
	ScheduleLaboratory = "Laboratory"
	ScheduleTutorial   = "Tutorial"
)

// CRNs returns the course reference numbers of sections, in order.
func CRNs(sections []Section) []string {
	crns := make([]string, 0, len(sections))
	for _, s := range sections {
		crns = append(crns, s.CourseReferenceNumber)
	}
	return crns
}

// Plural picks the noun form for n: Plural(1, "section", "sections") is
// "1 section".
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// FormatMeetingTimes groups days that share a time window:
//
//	"Mon & Thu · 9:40 AM - 11:00 AM, Wed · 2:10 PM - 5:00 PM"
//
// Groups keep the order in which their first meeting appears.
func FormatMeetingTimes(meetings []MeetingTime) string {
	var order []string
	days := map[string][]string{}

	for _, m := range meetings {
		if len(m.Days) == 0 {
			continue
		}
		key := m.BeginTime + "-" + m.EndTime
		if _, ok := days[key]; !ok {
			order = append(order, key)
		}
		days[key] = append(days[key], shortDay(m.Days[0]))
	}

	groups := make([]string, 0, len(order))
	for _, key := range order {
		begin, end, _ := strings.Cut(key, "-")
		groups = append(groups, fmt.Sprintf("%s · %s - %s",
			strings.Join(days[key], " & "), formatClock(begin), formatClock(end)))
	}
	return strings.Join(groups, ", ")
}

func shortDay(day string) string {
	if day == "" {
		return ""
	}
	d := strings.ToUpper(day[:1]) + strings.ToLower(day[1:])
	if len(d) > 3 {
		d = d[:3]
	}
	return d
}

// formatClock turns "1400" into "2:00 PM". Malformed input is returned as is.
func formatClock(hhmm string) string {
	if len(hhmm) != 4 {
		return hhmm
	}
	hours, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return hhmm
	}
	suffix := "AM"
	if hours >= 12 {
		suffix = "PM"
	}
	hours %= 12
	if hours == 0 {
		hours = 12
	}
	return fmt.Sprintf("%d:%s %s", hours, hhmm[2:], suffix)
}
