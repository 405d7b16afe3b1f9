package autofill

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/schema"
)

func item(id, title, content string) schema.QuestionItem {
	return schema.QuestionItem{ID: id, Title: title, Content: content, CreatedAt: time.UnixMilli(1).UTC()}
}

func form(qa []string, cover []string) *page.Form {
	spec := page.FormSpec{}
	if qa != nil {
		g := page.GroupSpec{Name: page.GroupQuestionAnswers}
		for _, l := range qa {
			g.Fields = append(g.Fields, page.FieldSpec{Label: l})
		}
		spec.Groups = append(spec.Groups, g)
	}
	if cover != nil {
		g := page.GroupSpec{Name: page.GroupCoverLetter}
		for _, l := range cover {
			g.Fields = append(g.Fields, page.FieldSpec{Label: l})
		}
		spec.Groups = append(spec.Groups, g)
	}
	return page.NewForm(spec)
}

func value(t *testing.T, f *page.Form, label string) string {
	t.Helper()
	field, ok := f.Lookup(label)
	if !ok {
		t.Fatalf("No field %q", label)
	}
	return field.Value()
}

// recordingObserver counts re-arms and remembers expected writes.
type recordingObserver struct {
	calls    int
	expected map[string]string
}

func (r *recordingObserver) Setup() (int, error) {
	r.calls++
	return 0, nil
}

func (r *recordingObserver) Expect(fieldID, value string) {
	if r.expected == nil {
		r.expected = make(map[string]string)
	}
	r.expected[fieldID] = value
}

func TestFillItemPortfolio(t *testing.T) {
	f := form([]string{"Please share your portfolio link", "Name"}, nil)
	obs := &recordingObserver{}
	e := New(f, obs, nil)

	result := e.FillItem(item("qi_1", "Portfolio link", "example.com"))

	if result != (Result{Filled: true, Count: 1}) {
		t.Errorf("FillItem = %+v, want 1 field filled", result)
	}
	if got := value(t, f, "Please share your portfolio link"); got != "example.com" {
		t.Errorf("Portfolio field = %q, want example.com", got)
	}
	if got := value(t, f, "Name"); got != "" {
		t.Errorf("Name field = %q, want empty", got)
	}
	if obs.calls != 1 {
		t.Errorf("Setup called %d times, want 1", obs.calls)
	}
}

func TestFillExpectsBeforeChange(t *testing.T) {
	f := form([]string{"Portfolio"}, nil)
	field, _ := f.Lookup("Portfolio")
	obs := &recordingObserver{}

	var seen string
	field.Listen(page.EventChange, func(page.Field) { seen = obs.expected[field.ID()] })

	New(f, obs, nil).FillItem(item("qi_1", "Portfolio", "example.com"))

	if seen != "example.com" {
		t.Errorf("Expectation at change dispatch = %q, want example.com", seen)
	}
}

func TestFillItemDispatchesEvents(t *testing.T) {
	f := form([]string{"Portfolio"}, nil)
	field, _ := f.Lookup("Portfolio")

	var events []string
	field.Listen(page.EventInput, func(page.Field) { events = append(events, page.EventInput) })
	field.Listen(page.EventChange, func(page.Field) { events = append(events, page.EventChange) })

	New(f, nil, nil).FillItem(item("qi_1", "Portfolio", "example.com"))

	want := []string{page.EventInput, page.EventChange}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("Events = %v, want %v", events, want)
	}
}

func TestFillItemScansBothGroups(t *testing.T) {
	f := form([]string{"Why this role?"}, []string{"Why this role? (cover letter)"})

	result := New(f, nil, nil).FillItem(item("qi_1", "why this role", "Growth"))

	if result != (Result{Filled: true, Count: 2}) {
		t.Errorf("FillItem = %+v, want 2 fields filled", result)
	}
}

func TestFillItemNoMatch(t *testing.T) {
	f := form([]string{"Name"}, []string{"Cover letter"})

	result := New(f, nil, nil).FillItem(item("qi_1", "Portfolio link", "example.com"))

	if result.Filled || result.Count != 0 {
		t.Errorf("FillItem = %+v, want nothing filled", result)
	}
}

func TestFillItemAlreadyFilled(t *testing.T) {
	f := form([]string{"Portfolio"}, nil)
	if err := f.Type("Portfolio", "example.com"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}

	result := New(f, nil, nil).FillItem(item("qi_1", "Portfolio", "example.com"))

	if result.Filled {
		t.Errorf("FillItem = %+v, want nothing filled", result)
	}
}

func TestFillAllTieBreakIsCollectionOrder(t *testing.T) {
	f := form([]string{"Budget"}, nil)
	items := schema.Collection{
		item("qi_2", "Budget", "10k"),
		item("qi_1", "Budget range", "5k-15k"),
	}

	result := New(f, nil, nil).FillAll(items)

	if result.Count != 1 {
		t.Errorf("FillAll count = %d, want 1", result.Count)
	}
	if got := value(t, f, "Budget"); got != "10k" {
		t.Errorf("Budget field = %q, want 10k", got)
	}

	// First in collection order wins, not the closest title.
	f = form([]string{"Budget"}, nil)
	reversed := schema.Collection{items[1], items[0]}
	New(f, nil, nil).FillAll(reversed)
	if got := value(t, f, "Budget"); got != "5k-15k" {
		t.Errorf("Budget field = %q, want 5k-15k", got)
	}
}

func TestFillAllFillsEveryMatchedFieldOnce(t *testing.T) {
	f := form([]string{"Years of experience", "Salary", "Hobbies"}, []string{"Cover letter"})
	items := schema.Collection{
		item("qi_3", "experience", "5"),
		item("qi_2", "salary", "90k"),
		item("qi_1", "cover letter", "Dear team"),
	}

	result := New(f, nil, nil).FillAll(items)

	if result != (Result{Filled: true, Count: 3}) {
		t.Errorf("FillAll = %+v, want 3 fields filled", result)
	}
	want := map[string]string{
		"Years of experience": "5",
		"Salary":              "90k",
		"Cover letter":        "Dear team",
		"Hobbies":             "",
	}
	for label, v := range want {
		if got := value(t, f, label); got != v {
			t.Errorf("%s = %q, want %q", label, got, v)
		}
	}

	if again := New(f, nil, nil).FillAll(items); again.Filled {
		t.Errorf("Second pass filled %d fields, want none", again.Count)
	}
}

func TestFillAllZeroMatchesIsSilent(t *testing.T) {
	f := form([]string{"Name"}, nil)
	obs := &recordingObserver{}

	result := New(f, obs, nil).FillAll(nil)

	if result != (Result{}) {
		t.Errorf("FillAll = %+v, want zero result", result)
	}
	if obs.calls != 1 {
		t.Errorf("Setup called %d times, want 1", obs.calls)
	}
	if len(obs.expected) != 0 {
		t.Errorf("Unexpected expectations %v", obs.expected)
	}
}

func TestCustomGroupOrder(t *testing.T) {
	f := form([]string{"Salary"}, []string{"Salary"})
	e := New(f, nil, &Config{Groups: []string{page.GroupCoverLetter}})

	if result := e.FillItem(item("qi_1", "Salary", "90k")); result.Count != 1 {
		t.Errorf("FillItem count = %d, want 1", result.Count)
	}
}

// panicField blows up on read, like a host page element torn down mid-scan.
type panicField struct{ page.Field }

func (panicField) ID() string    { return "boom" }
func (panicField) Label() string { panic("element removed") }

type staticSource struct {
	groups []page.Group
	err    error
}

func (s staticSource) ListFieldGroups() ([]page.Group, error) { return s.groups, s.err }

func TestPanicBecomesNoMatch(t *testing.T) {
	src := staticSource{groups: []page.Group{{
		Name:   page.GroupQuestionAnswers,
		Fields: []page.Field{panicField{}},
	}}}
	obs := &recordingObserver{}

	result := New(src, obs, nil).FillItem(item("qi_1", "x", "y"))

	if result != (Result{}) {
		t.Errorf("FillItem = %+v, want zero result", result)
	}
	if obs.calls != 1 {
		t.Errorf("Monitor re-armed %d times after a failed pass, want 1", obs.calls)
	}
}

func TestSourceErrorBecomesNoMatch(t *testing.T) {
	src := staticSource{err: errors.New("page gone")}

	result := New(src, nil, nil).FillAll(schema.Collection{item("qi_1", "x", "y")})

	if result != (Result{}) {
		t.Errorf("FillAll = %+v, want zero result", result)
	}
}

func TestDetachedFieldBecomesNoMatch(t *testing.T) {
	f := form([]string{"Portfolio"}, nil)
	stale, err := f.ListFieldGroups()
	if err != nil {
		t.Fatalf("ListFieldGroups failed: %v", err)
	}
	f.Rerender()

	result := New(staticSource{groups: stale}, nil, nil).FillItem(item("qi_1", "Portfolio", "example.com"))

	if result != (Result{}) {
		t.Errorf("FillItem = %+v, want zero result", result)
	}
}
