package dispatch

import "context"

// Extension point names consumed while composing messages.
const (
	HookEntityMessage     = "notify:entity:message"
	HookEntitySubject     = "notify:entity:subject"
	HookAnnotationMessage = "notify:annotation:message"
	HookAnnotationSubject = "notify:annotation:subject"
)

type overrideKind int

const (
	useDefault overrideKind = iota
	replace
	suppress
)

// Override is the result of an extension hook: replace the value, keep the
// default, or suppress delivery.
type Override struct {
	kind  overrideKind
	value string
}

// UseDefault keeps the default value.
func UseDefault() Override { return Override{kind: useDefault} }

// Replace substitutes value for the default.
func Replace(value string) Override { return Override{kind: replace, value: value} }

// Suppress cancels delivery to the recipient.
func Suppress() Override { return Override{kind: suppress} }

// IsSuppress reports whether the hook cancelled delivery.
func (o Override) IsSuppress() bool { return o.kind == suppress }

// Value returns the replacement and whether it is usable. An empty
// replacement is not usable.
func (o Override) Value() (string, bool) {
	if o.kind != replace || o.value == "" {
		return "", false
	}
	return o.value, true
}

// HookContext is passed to every extension hook.
type HookContext struct {
	// Name is one of the Hook* constants.
	Name string
	// Type is the entity type for entity hooks and the annotation name for
	// annotation hooks.
	Type string

	Entity     *Entity
	Annotation *Annotation
	Recipient  *Account
	Method     string
}

// Hooks customizes the message and subject per recipient and method.
type Hooks interface {
	Message(ctx context.Context, hc HookContext, def string) Override
	Subject(ctx context.Context, hc HookContext, def string) Override
}

// NoHooks keeps every default.
type NoHooks struct{}

// Message keeps the default body.
func (NoHooks) Message(context.Context, HookContext, string) Override { return UseDefault() }

// Subject keeps the default subject.
func (NoHooks) Subject(context.Context, HookContext, string) Override { return UseDefault() }

// Chain runs hooks in order. Each hook sees the value produced so far; a
// Suppress ends the chain.
func Chain(hooks ...Hooks) Hooks {
	return chain(hooks)
}

type chain []Hooks

func (c chain) Message(ctx context.Context, hc HookContext, def string) Override {
	return c.run(def, func(h Hooks, cur string) Override { return h.Message(ctx, hc, cur) })
}

func (c chain) Subject(ctx context.Context, hc HookContext, def string) Override {
	return c.run(def, func(h Hooks, cur string) Override { return h.Subject(ctx, hc, cur) })
}

func (c chain) run(def string, call func(Hooks, string) Override) Override {
	result := UseDefault()
	cur := def
	for _, h := range c {
		o := call(h, cur)
		if o.IsSuppress() {
			return o
		}
		if v, ok := o.Value(); ok {
			cur = v
			result = o
		}
	}
	return result
}
