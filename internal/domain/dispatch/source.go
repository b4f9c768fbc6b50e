package dispatch

import "strings"

// Source normalizes what triggered a dispatch so entity and annotation
// notifications share one pipeline.
type Source struct {
	// Entity is the subject entity. For annotations it is the annotated entity.
	Entity     *Entity
	Annotation *Annotation

	HookType    string
	MessageHook string
	SubjectHook string

	DefaultSubject string
	DefaultBody    string

	// Exclude lists accounts never notified for this source.
	Exclude []GUID
}

// NewEntitySource describes a newly created entity. The actor, when known,
// is excluded from the recipients.
func NewEntitySource(e *Entity, subject string, actor GUID) *Source {
	return &Source{
		Entity:         e,
		HookType:       e.Type,
		MessageHook:    HookEntityMessage,
		SubjectHook:    HookEntitySubject,
		DefaultSubject: subject,
		DefaultBody:    subject + ": " + e.GUID.String(),
		Exclude:        []GUID{actor},
	}
}

// NewAnnotationSource describes a new annotation on e. The annotation owner
// is excluded from the recipients.
func NewAnnotationSource(a *Annotation, e *Entity, subject, url string) *Source {
	return &Source{
		Entity:         e,
		Annotation:     a,
		HookType:       a.Name,
		MessageHook:    HookAnnotationMessage,
		SubjectHook:    HookAnnotationSubject,
		DefaultSubject: subject,
		DefaultBody:    subject + ": " + url,
		Exclude:        []GUID{a.OwnerGUID},
	}
}

// HookContext returns the hook arguments for one recipient. Name is left for
// the caller to set.
func (s *Source) HookContext(recipient *Account, method string) HookContext {
	return HookContext{
		Type:       s.HookType,
		Entity:     s.Entity,
		Annotation: s.Annotation,
		Recipient:  recipient,
		Method:     method,
	}
}

// EntityURL returns the stored URL of e, or a view URL under siteURL.
func EntityURL(e *Entity, siteURL string) string {
	if e.URL != "" {
		return e.URL
	}
	return strings.TrimRight(siteURL, "/") + "/view/" + e.GUID.String()
}
