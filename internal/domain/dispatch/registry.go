package dispatch

// BlankKey stands in for a missing type or subtype in registry lookups.
const BlankKey = "__BLANK__"

// DefaultAnnotationKinds are the annotation names notified out of the box.
var DefaultAnnotationKinds = []string{"group_topic_post"}

// RegisteredType maps an entity type/subtype pair to its default subject.
type RegisteredType struct {
	Type    string `mapstructure:"type"`
	Subtype string `mapstructure:"subtype"`
	Subject string `mapstructure:"subject"`
}

type typeKey struct {
	typ     string
	subtype string
}

// Registry holds the entity types and annotation kinds that trigger
// notifications. It is built once and never mutated afterwards.
type Registry struct {
	types       map[typeKey]string
	annotations map[string]struct{}
}

// NewRegistry builds a registry. A nil annotations slice selects
// DefaultAnnotationKinds.
func NewRegistry(types []RegisteredType, annotations []string) *Registry {
	if annotations == nil {
		annotations = DefaultAnnotationKinds
	}

	r := &Registry{
		types:       make(map[typeKey]string, len(types)),
		annotations: make(map[string]struct{}, len(annotations)),
	}
	for _, t := range types {
		r.types[newTypeKey(t.Type, t.Subtype)] = t.Subject
	}
	for _, name := range annotations {
		r.annotations[name] = struct{}{}
	}
	return r
}

func newTypeKey(typ, subtype string) typeKey {
	if typ == "" {
		typ = BlankKey
	}
	if subtype == "" {
		subtype = BlankKey
	}
	return typeKey{typ: typ, subtype: subtype}
}

// DefaultSubject returns the subject template registered for the entity's
// type and subtype.
func (r *Registry) DefaultSubject(e *Entity) (string, bool) {
	if e == nil {
		return "", false
	}
	subject, ok := r.types[newTypeKey(e.Type, e.Subtype)]
	return subject, ok
}

// IsRegisteredEntity reports whether the entity's type/subtype is registered.
func (r *Registry) IsRegisteredEntity(e *Entity) bool {
	_, ok := r.DefaultSubject(e)
	return ok
}

// IsRegisteredAnnotation reports whether the annotation kind is eligible.
func (r *Registry) IsRegisteredAnnotation(a *Annotation) bool {
	if a == nil {
		return false
	}
	_, ok := r.annotations[a.Name]
	return ok
}
