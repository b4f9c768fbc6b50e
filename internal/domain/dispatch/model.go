package dispatch

import "strconv"

// GUID identifies an entity or account in the host CMS.
type GUID int64

func (g GUID) String() string {
	return strconv.FormatInt(int64(g), 10)
}

// ParseGUID parses a decimal GUID. Empty input yields zero.
func ParseGUID(s string) (GUID, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return GUID(n), nil
}

// AccessID is the read-access level of an entity. Values other than the
// named levels refer to an access collection.
type AccessID int64

const (
	AccessPrivate  AccessID = 0
	AccessLoggedIn AccessID = 1
	AccessPublic   AccessID = 2
)

// Entity is a unit of user content in the host CMS.
type Entity struct {
	GUID          GUID     `json:"guid"`
	Type          string   `json:"type"`
	Subtype       string   `json:"subtype"`
	OwnerGUID     GUID     `json:"owner_guid"`
	ContainerGUID GUID     `json:"container_guid"`
	AccessID      AccessID `json:"access_id"`
	URL           string   `json:"url,omitempty"`
}

// Annotation is a lightweight record attached to an entity, e.g. a reply.
type Annotation struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	EntityGUID GUID   `json:"entity_guid"`
	OwnerGUID  GUID   `json:"owner_guid"`
	Value      string `json:"value,omitempty"`
}

// Account is a user that may receive notifications.
type Account struct {
	GUID     GUID   `json:"guid"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Banned   bool   `json:"banned"`
}

// NotifiableEvent describes one dispatch request. AnnotationID is zero for
// entity notifications.
type NotifiableEvent struct {
	Name         string
	EntityGUID   GUID
	AnnotationID int64
	ActorGUID    GUID
	SiteURL      string
}

// IsAnnotation reports whether the event was raised by an annotation.
func (e NotifiableEvent) IsAnnotation() bool {
	return e.AnnotationID != 0
}

// Candidate is a subscriber resolved for one delivery method.
type Candidate struct {
	GUID   GUID
	Method string
}

// ComposedMessage is the final subject and body for one recipient.
type ComposedMessage struct {
	Subject    string
	Body       string
	Suppressed bool
}

// EntityEventRequest is the API payload announcing a created entity.
type EntityEventRequest struct {
	Event     string `json:"event" binding:"required"`
	GUID      int64  `json:"guid" binding:"required,gt=0"`
	ActorGUID int64  `json:"actor_guid"`
}

// AnnotationEventRequest is the API payload announcing a created annotation.
type AnnotationEventRequest struct {
	Event string `json:"event" binding:"required"`
	ID    int64  `json:"id" binding:"required,gt=0"`
}

// Trigger outcomes reported to the API caller.
const (
	TriggerQueued  = "queued"
	TriggerSkipped = "skipped"
)

// TriggerResponse is the API response after an event was accepted.
type TriggerResponse struct {
	Status string      `json:"status"`
	Reason AbortReason `json:"reason,omitempty"`
}
