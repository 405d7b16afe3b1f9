package page

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// FormSpec is the YAML layout of a form.
type FormSpec struct {
	Title  string      `yaml:"title,omitempty"`
	Groups []GroupSpec `yaml:"groups"`
}

// GroupSpec is one named group of fields.
type GroupSpec struct {
	Name   string      `yaml:"name"`
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec is one labelled field with its current value.
type FieldSpec struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

var fieldSeq atomic.Int64

// Form is an in-memory page built from a FormSpec.
type Form struct {
	mu     sync.RWMutex
	title  string
	groups []formGroup
}

type formGroup struct {
	name   string
	fields []*FormField
}

// NewForm renders spec into live fields.
func NewForm(spec FormSpec) *Form {
	f := &Form{title: spec.Title}
	f.groups = f.render(spec)
	return f
}

// ParseForm decodes a YAML form.
func ParseForm(data []byte) (*Form, error) {
	var spec FormSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	return NewForm(spec), nil
}

// LoadForm reads a YAML form from path.
func LoadForm(path string) (*Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read form: %w", err)
	}
	return ParseForm(data)
}

// Save writes the form, with current field values, to path.
func (f *Form) Save(path string) error {
	data, err := yaml.Marshal(f.Spec())
	if err != nil {
		return fmt.Errorf("failed to encode form: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write form: %w", err)
	}
	return nil
}

// Title returns the form title.
func (f *Form) Title() string {
	return f.title
}

// Spec returns the form layout with current values.
func (f *Form) Spec() FormSpec {
	f.mu.RLock()
	defer f.mu.RUnlock()

	spec := FormSpec{Title: f.title}
	for _, g := range f.groups {
		gs := GroupSpec{Name: g.name}
		for _, field := range g.fields {
			gs.Fields = append(gs.Fields, FieldSpec{Label: field.label, Value: field.Value()})
		}
		spec.Groups = append(spec.Groups, gs)
	}
	return spec
}

// ListFieldGroups implements Source.
func (f *Form) ListFieldGroups() ([]Group, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	groups := make([]Group, 0, len(f.groups))
	for _, g := range f.groups {
		fields := make([]Field, len(g.fields))
		for i, field := range g.fields {
			fields[i] = field
		}
		groups = append(groups, Group{Name: g.name, Fields: fields})
	}
	return groups, nil
}

// Rerender replaces every field with a fresh instance carrying the same
// label and value. Old instances are detached and their listeners dropped.
func (f *Form) Rerender() {
	spec := f.Spec()

	f.mu.Lock()
	old := f.groups
	f.groups = f.render(spec)
	f.mu.Unlock()

	for _, g := range old {
		for _, field := range g.fields {
			field.detach()
		}
	}
}

// Lookup returns the first field whose label is exactly label.
func (f *Form) Lookup(label string) (*FormField, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, g := range f.groups {
		for _, field := range g.fields {
			if field.label == label {
				return field, true
			}
		}
	}
	return nil, false
}

// Type simulates a user editing the field labelled label: the value is set,
// then input and change are dispatched.
func (f *Form) Type(label, value string) error {
	field, ok := f.Lookup(label)
	if !ok {
		return fmt.Errorf("no field labelled %q", label)
	}
	if err := field.SetValue(value); err != nil {
		return err
	}
	if err := field.Dispatch(EventInput); err != nil {
		return err
	}
	return field.Dispatch(EventChange)
}

func (f *Form) render(spec FormSpec) []formGroup {
	groups := make([]formGroup, 0, len(spec.Groups))
	for _, gs := range spec.Groups {
		g := formGroup{name: gs.Name}
		for _, fs := range gs.Fields {
			g.fields = append(g.fields, &FormField{
				id:        "field-" + strconv.FormatInt(fieldSeq.Add(1), 10),
				label:     fs.Label,
				value:     fs.Value,
				listeners: make(map[string]map[int]Listener),
			})
		}
		groups = append(groups, g)
	}
	return groups
}

// FormField is a Field belonging to a Form.
type FormField struct {
	id    string
	label string

	mu        sync.Mutex
	value     string
	detached  bool
	listeners map[string]map[int]Listener
	nextID    int
}

// ID implements Field.
func (ff *FormField) ID() string { return ff.id }

// Label implements Field.
func (ff *FormField) Label() string { return ff.label }

// Value implements Field.
func (ff *FormField) Value() string {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.value
}

// SetValue implements Field.
func (ff *FormField) SetValue(v string) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.detached {
		return ErrDetached
	}
	ff.value = v
	return nil
}

// Dispatch implements Field.
func (ff *FormField) Dispatch(event string) error {
	ff.mu.Lock()
	if ff.detached {
		ff.mu.Unlock()
		return ErrDetached
	}
	fns := make([]Listener, 0, len(ff.listeners[event]))
	for i := 0; i < ff.nextID; i++ {
		if fn, ok := ff.listeners[event][i]; ok {
			fns = append(fns, fn)
		}
	}
	ff.mu.Unlock()

	for _, fn := range fns {
		fn(ff)
	}
	return nil
}

// Listen implements Field.
func (ff *FormField) Listen(event string, fn Listener) func() {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.detached {
		return func() {}
	}
	if ff.listeners[event] == nil {
		ff.listeners[event] = make(map[int]Listener)
	}
	id := ff.nextID
	ff.nextID++
	ff.listeners[event][id] = fn

	return func() {
		ff.mu.Lock()
		defer ff.mu.Unlock()
		delete(ff.listeners[event], id)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (ff *FormField) ListenerCount(event string) int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.listeners[event])
}

func (ff *FormField) detach() {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.detached = true
	ff.listeners = make(map[string]map[int]Listener)
}
