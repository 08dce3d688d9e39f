package event

import "encoding/json"

// Event is an enrichment result: objects plus a set of tags. Tags keep their
// first insertion order.
type Event struct {
	objects []Object
	tags    []string
	tagSet  map[string]struct{}
}

// New returns an empty event.
func New() *Event {
	return &Event{tagSet: make(map[string]struct{})}
}

// AddObject appends an object.
func (e *Event) AddObject(o Object) {
	e.objects = append(e.objects, o)
}

// AddTag adds a tag and reports whether it was new.
func (e *Event) AddTag(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := e.tagSet[name]; ok {
		return false
	}
	e.tagSet[name] = struct{}{}
	e.tags = append(e.tags, name)
	return true
}

// HasTag reports whether the event carries the tag.
func (e *Event) HasTag(name string) bool {
	_, ok := e.tagSet[name]
	return ok
}

// Objects returns a copy of the event's objects.
func (e *Event) Objects() []Object {
	return append([]Object(nil), e.objects...)
}

// ObjectsNamed returns the objects built from the given template.
func (e *Event) ObjectsNamed(name string) []Object {
	var out []Object
	for _, o := range e.objects {
		if o.name == name {
			out = append(out, o)
		}
	}
	return out
}

// Tags returns a copy of the event's tags.
func (e *Event) Tags() []string {
	return append([]string(nil), e.tags...)
}

type tag struct {
	Name string `json:"name"`
}

// MarshalJSON renders the event in MISP standard format. Empty sections are
// omitted.
func (e *Event) MarshalJSON() ([]byte, error) {
	out := struct {
		Object []Object `json:"Object,omitempty"`
		Tag    []tag    `json:"Tag,omitempty"`
	}{Object: e.objects}

	for _, t := range e.tags {
		out.Tag = append(out.Tag, tag{Name: t})
	}
	return json.Marshal(out)
}
