package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kz4killua/course-alerts/internal/client/debounce"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/logging"
)

// CatalogAPI is the read-only course catalog.
type CatalogAPI interface {
	ListTerms(ctx context.Context, registrationOpen *bool) ([]models.Term, error)
	ListCourses(ctx context.Context, term, search string) ([]models.Course, error)
	ListSections(ctx context.Context, subjectCourse, term string) ([]models.Section, error)
}

// Catalog browses terms, courses and sections.
type Catalog struct {
	api CatalogAPI
	log logging.Logger
}

func NewCatalog(api CatalogAPI, log logging.Logger) *Catalog {
	return &Catalog{api: api, log: log}
}

// Terms lists terms, only those open for registration when openOnly is set.
func (c *Catalog) Terms(ctx context.Context, openOnly bool) ([]models.Term, error) {
	var filter *bool
	if openOnly {
		filter = &openOnly
	}
	terms, err := c.api.ListTerms(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

func (c *Catalog) Search(ctx context.Context, term, query string) ([]models.Course, error) {
	courses, err := c.api.ListCourses(ctx, term, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("search courses: %w", err)
	}
	return courses, nil
}

func (c *Catalog) Sections(ctx context.Context, subjectCourse, term string) ([]models.Section, error) {
	sections, err := c.api.ListSections(ctx, strings.ToUpper(strings.TrimSpace(subjectCourse)), term)
	if err != nil {
		return nil, fmt.Errorf("list sections of %s: %w", subjectCourse, err)
	}
	return sections, nil
}

// ScheduleTypeCounts counts sections per schedule type ("Lecture", ...).
func ScheduleTypeCounts(sections []models.Section) map[string]int {
	counts := make(map[string]int)
	for _, s := range sections {
		counts[s.ScheduleTypeDescription]++
	}
	return counts
}

// SectionsOfType keeps the sections of one schedule type, compared
// case-insensitively.
func SectionsOfType(sections []models.Section, scheduleType string) []models.Section {
	var out []models.Section
	for _, s := range sections {
		if strings.EqualFold(s.ScheduleTypeDescription, scheduleType) {
			out = append(out, s)
		}
	}
	return out
}

// Selection is the set of sections picked for alerts, keyed by CRN.
type Selection struct {
	mu       sync.RWMutex
	sections map[string]models.Section
}

func NewSelection() *Selection {
	return &Selection{sections: make(map[string]models.Section)}
}

// Toggle adds s if absent and removes it otherwise. It reports whether s
// is selected afterwards.
func (sel *Selection) Toggle(s models.Section) bool {
	sel.mu.Lock()
	defer sel.mu.Unlock()

	if _, ok := sel.sections[s.CourseReferenceNumber]; ok {
		delete(sel.sections, s.CourseReferenceNumber)
		return false
	}
	sel.sections[s.CourseReferenceNumber] = s
	return true
}

func (sel *Selection) Add(sections ...models.Section) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	for _, s := range sections {
		sel.sections[s.CourseReferenceNumber] = s
	}
}

func (sel *Selection) Remove(crn string) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	delete(sel.sections, crn)
}

func (sel *Selection) Has(crn string) bool {
	sel.mu.RLock()
	defer sel.mu.RUnlock()
	_, ok := sel.sections[crn]
	return ok
}

func (sel *Selection) Len() int {
	sel.mu.RLock()
	defer sel.mu.RUnlock()
	return len(sel.sections)
}

// Clear empties the selection.
func (sel *Selection) Clear() {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	clear(sel.sections)
}

// Sections returns the selected sections ordered by course, then CRN.
func (sel *Selection) Sections() []models.Section {
	sel.mu.RLock()
	out := make([]models.Section, 0, len(sel.sections))
	for _, s := range sel.sections {
		out = append(out, s)
	}
	sel.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Course != out[j].Course {
			return out[i].Course < out[j].Course
		}
		return out[i].CourseReferenceNumber < out[j].CourseReferenceNumber
	})
	return out
}

// CourseSearch runs catalog searches as the user types. Queries closer
// together than the delay collapse into one request, and a newer query
// cancels the request of an older one.
type CourseSearch struct {
	catalog   *Catalog
	debouncer *debounce.Debouncer
	deliver   func(query string, courses []models.Course, err error)
}

// NewCourseSearch calls deliver, from another goroutine, with the result of
// the latest query only.
func NewCourseSearch(catalog *Catalog, delay time.Duration, deliver func(query string, courses []models.Course, err error)) *CourseSearch {
	return &CourseSearch{catalog: catalog, debouncer: debounce.New(delay), deliver: deliver}
}

func (s *CourseSearch) Query(ctx context.Context, term, query string) {
	s.debouncer.Trigger(ctx, func(ctx context.Context, current func() bool) {
		courses, err := s.catalog.Search(ctx, term, query)
		if !current() {
			return
		}
		if err != nil {
			s.catalog.log.Warn(ctx, "course search", "query", query, "error", err)
		}
		s.deliver(query, courses, err)
	})
}

// Stop drops a pending query and cancels a running one.
func (s *CourseSearch) Stop() {
	s.debouncer.Stop()
}
