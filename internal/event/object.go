// Package event builds MISP standard format events: typed objects carrying
// attributes, plus a set of event tags.
package event

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Category is a MISP attribute category.
type Category string

const (
	CategoryPayloadDelivery  Category = "Payload delivery"
	CategoryNetworkActivity  Category = "Network activity"
	CategoryExternalAnalysis Category = "External analysis"
	CategoryOther            Category = "Other"
)

// MetaCategory groups object templates.
type MetaCategory string

const (
	MetaFile    MetaCategory = "file"
	MetaNetwork MetaCategory = "network"
	MetaMisc    MetaCategory = "misc"
)

// Attribute is a single typed value inside an object.
type Attribute struct {
	uuid     string
	relation string
	typ      string
	category Category
	value    string
	toIDS    bool
}

// Relation returns the object relation, e.g. "ip-dst".
func (a Attribute) Relation() string { return a.relation }

// Type returns the MISP attribute type, e.g. "port".
func (a Attribute) Type() string { return a.typ }

// Category returns the MISP attribute category.
func (a Attribute) Category() Category { return a.category }

// Value returns the attribute value.
func (a Attribute) Value() string { return a.value }

// ToIDS reports whether the attribute is flagged for detection.
func (a Attribute) ToIDS() bool { return a.toIDS }

// UUID returns the attribute uuid.
func (a Attribute) UUID() string { return a.uuid }

// MarshalJSON implements json.Marshaler.
func (a Attribute) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UUID           string   `json:"uuid"`
		ObjectRelation string   `json:"object_relation"`
		Type           string   `json:"type"`
		Category       Category `json:"category"`
		Value          string   `json:"value"`
		ToIDS          bool     `json:"to_ids"`
	}{a.uuid, a.relation, a.typ, a.category, a.value, a.toIDS})
}

// Object is an immutable MISP object. Build one with the New*Object functions.
type Object struct {
	uuid         string
	name         string
	metaCategory MetaCategory
	attributes   []Attribute
}

// Name returns the object template name, e.g. "http-request".
func (o Object) Name() string { return o.name }

// MetaCategory returns the object meta-category.
func (o Object) MetaCategory() MetaCategory { return o.metaCategory }

// UUID returns the object uuid.
func (o Object) UUID() string { return o.uuid }

// Attributes returns a copy of the object's attributes in insertion order.
func (o Object) Attributes() []Attribute {
	return append([]Attribute(nil), o.attributes...)
}

// Values returns the values of every attribute with the given relation.
func (o Object) Values(relation string) []string {
	var out []string
	for _, a := range o.attributes {
		if a.relation == relation {
			out = append(out, a.value)
		}
	}
	return out
}

// Value returns the first value of relation, or "" when absent.
func (o Object) Value(relation string) string {
	for _, a := range o.attributes {
		if a.relation == relation {
			return a.value
		}
	}
	return ""
}

// MarshalJSON implements json.Marshaler.
func (o Object) MarshalJSON() ([]byte, error) {
	attrs := o.attributes
	if attrs == nil {
		attrs = []Attribute{}
	}
	return json.Marshal(struct {
		UUID         string       `json:"uuid"`
		Name         string       `json:"name"`
		MetaCategory MetaCategory `json:"meta-category"`
		Attribute    []Attribute  `json:"Attribute"`
	}{o.uuid, o.name, o.metaCategory, attrs})
}

// objectBuilder accumulates attributes for a single object. Empty values are
// skipped so optional report fields never produce blank attributes.
type objectBuilder struct {
	obj Object
}

func newObject(name string, meta MetaCategory) *objectBuilder {
	return &objectBuilder{obj: Object{
		uuid:         uuid.NewString(),
		name:         name,
		metaCategory: meta,
	}}
}

func (b *objectBuilder) add(relation, typ string, category Category, value string, toIDS bool) *objectBuilder {
	if value == "" {
		return b
	}
	b.obj.attributes = append(b.obj.attributes, Attribute{
		uuid:     uuid.NewString(),
		relation: relation,
		typ:      typ,
		category: category,
		value:    value,
		toIDS:    toIDS,
	})
	return b
}

func (b *objectBuilder) build() Object {
	return b.obj
}
