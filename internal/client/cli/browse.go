package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/services"
)

var errNoTerm = errors.New("choose a term first with 'term <code>'")

var scheduleAliases = map[string]string{
	"lectures":  models.ScheduleLecture,
	"lecture":   models.ScheduleLecture,
	"labs":      models.ScheduleLaboratory,
	"lab":       models.ScheduleLaboratory,
	"tutorials": models.ScheduleTutorial,
	"tutorial":  models.ScheduleTutorial,
}

// Terms lists the terms open for registration, or every term with "all".
func (a *App) Terms(ctx context.Context, args []string) error {
	openOnly := !(len(args) > 0 && strings.EqualFold(args[0], "all"))

	terms, err := a.catalog.Terms(ctx, openOnly)
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		a.println("No terms found.")
		return nil
	}

	for _, t := range terms {
		mark := ""
		if t.Term == a.term.Term {
			mark = " *"
		}
		a.printf("  %-8s %s%s\n", t.Term, t.TermDesc, mark)
	}
	return nil
}

// SetTerm picks the term by code or by description. Changing the term
// drops the selection, which only makes sense within one term.
func (a *App) SetTerm(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: term <code>")
	}
	want := strings.Join(args, " ")

	terms, err := a.catalog.Terms(ctx, false)
	if err != nil {
		return err
	}

	for _, t := range terms {
		if t.Term != want && !strings.EqualFold(t.TermDesc, want) {
			continue
		}
		if t.Term != a.term.Term {
			a.search.Stop()
			a.selection.Clear()
			a.sections = nil
			a.setSubscribed(nil)
		}
		a.term = t
		a.printf("Browsing %s.\n", t.TermDesc)
		return nil
	}
	return fmt.Errorf("no term %q", want)
}

// Search looks up courses in the current term and waits for the debounced
// result.
func (a *App) Search(ctx context.Context, args []string) error {
	if a.term.Term == "" {
		return errNoTerm
	}
	query := strings.Join(args, " ")

	a.drainResults()
	a.search.Query(ctx, a.term.Term, query)

	wait := time.NewTimer(a.config.SearchDebounce + a.config.RequestTimeout + time.Second)
	defer wait.Stop()

	for {
		select {
		case r := <-a.results:
			if r.query != query {
				continue
			}
			if r.err != nil {
				return r.err
			}
			a.printCourses(r.courses)
			return nil
		case <-wait.C:
			return errors.New("search timed out")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// deliverSearch keeps only the newest result for Search to pick up.
func (a *App) deliverSearch(query string, courses []models.Course, err error) {
	r := searchResult{query: query, courses: courses, err: err}
	for {
		select {
		case a.results <- r:
			return
		default:
			a.drainResults()
		}
	}
}

func (a *App) drainResults() {
	select {
	case <-a.results:
	default:
	}
}

func (a *App) printCourses(courses []models.Course) {
	if len(courses) == 0 {
		a.println("No courses found.")
		return
	}
	for _, c := range courses {
		a.printf("  %-12s %s\n", c.SubjectCourse, c.CourseTitle)
	}
}

// Sections lists the sections of one course in the current term and
// remembers them for select and selectall.
func (a *App) Sections(ctx context.Context, args []string) error {
	if a.term.Term == "" {
		return errNoTerm
	}
	if len(args) == 0 {
		return errors.New("usage: sections <subject course>")
	}

	sections, err := a.catalog.Sections(ctx, strings.Join(args, ""), a.term.Term)
	if err != nil {
		return err
	}
	a.sections = sections

	if len(sections) == 0 {
		a.println("No sections found.")
		return nil
	}

	counts := services.ScheduleTypeCounts(sections)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	summary := make([]string, 0, len(types))
	for _, t := range types {
		summary = append(summary, fmt.Sprintf("%s: %d", t, counts[t]))
	}
	a.println(strings.Join(summary, ", "))

	for _, s := range sections {
		a.printSection(s)
	}
	return nil
}

func (a *App) printSection(s models.Section) {
	mark := "[ ]"
	if a.selection.Has(s.CourseReferenceNumber) {
		mark = "[x]"
	}
	a.printf("  %s %-6s %-10s %-11s %-4s %s\n", mark,
		s.CourseReferenceNumber, s.Course, s.ScheduleTypeDescription, s.SequenceNumber,
		models.FormatMeetingTimes(s.MeetingTimes))
}

// Select toggles sections of the last listed course.
func (a *App) Select(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: select <crn>...")
	}

	for _, crn := range args {
		s, ok := findSection(a.sections, crn)
		if !ok {
			return fmt.Errorf("section %s is not in the last listed course", crn)
		}
		if a.selection.Toggle(s) {
			a.printf("Selected %s (%s %s).\n", crn, s.Course, s.ScheduleTypeDescription)
		} else {
			a.printf("Removed %s.\n", crn)
		}
	}
	return nil
}

// SelectAll adds every section of one schedule type of the last listed
// course.
func (a *App) SelectAll(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: selectall lectures|labs|tutorials")
	}
	scheduleType, ok := scheduleAliases[strings.ToLower(args[0])]
	if !ok {
		return fmt.Errorf("unknown section type %q", args[0])
	}

	sections := services.SectionsOfType(a.sections, scheduleType)
	if len(sections) == 0 {
		a.printf("No %s sections to select.\n", strings.ToLower(scheduleType))
		return nil
	}
	a.selection.Add(sections...)
	a.printf("Selected %s.\n", models.Plural(len(sections), "section", "sections"))
	return nil
}

// ShowSelection prints the selected sections, ordered by course and CRN.
func (a *App) ShowSelection(context.Context) error {
	sections := a.selection.Sections()
	if len(sections) == 0 {
		a.println("Nothing selected.")
		return nil
	}
	for _, s := range sections {
		a.printSection(s)
	}
	return nil
}

// ClearSelection empties the selection. Nothing is sent to the backend.
func (a *App) ClearSelection(context.Context) error {
	a.selection.Clear()
	a.println("Selection cleared.")
	return nil
}

func findSection(sections []models.Section, crn string) (models.Section, bool) {
	for _, s := range sections {
		if s.CourseReferenceNumber == crn {
			return s, true
		}
	}
	return models.Section{}, false
}
