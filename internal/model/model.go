package model

import "time"

type Role string

const (
	RoleCoach  Role = "COACH"
	RoleClient Role = "CLIENT"
)

type Status string

const (
	StatusProposed  Status = "PROPOSED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

type LocationType string

const (
	LocationInPerson LocationType = "IN_PERSON"
	LocationVideo    LocationType = "VIDEO"
	LocationPhone    LocationType = "PHONE"
)

func (l LocationType) Valid() bool {
	switch l {
	case LocationInPerson, LocationVideo, LocationPhone:
		return true
	}
	return false
}

// Scope selects whether cancel/delete touches one appointment or a whole series.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeSeries Scope = "series"
)

type MessageType string

const (
	MessageProposal MessageType = "APPOINTMENT_PROPOSAL"
	MessageTip      MessageType = "TIP"
)

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	ProfileID string
	Role      Role
	Name      string
}

type Appointment struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	CoachID         string       `json:"coachId"`
	ClientID        *string      `json:"clientId"`
	StartAt         time.Time    `json:"startAt"`
	EndAt           time.Time    `json:"endAt"`
	DurationMinutes int          `json:"durationMinutes"`
	LocationType    LocationType `json:"locationType"`
	LocationDetail  *string      `json:"locationDetail"`
	Status          Status       `json:"status"`
	RecurrenceRule  *string      `json:"recurrenceRule"`
	ParentID        *string      `json:"parentId"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// IsAnchor reports whether a is the template of a recurring series.
func (a *Appointment) IsAnchor() bool { return a.RecurrenceRule != nil }

func (a *Appointment) HasClient() bool { return a.ClientID != nil && *a.ClientID != "" }

// Overlaps reports whether [a.StartAt, a.EndAt) intersects [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && a.EndAt.After(start)
}

type Message struct {
	ID            string      `json:"id"`
	CoachID       string      `json:"coachId"`
	ClientID      string      `json:"clientId"`
	Content       string      `json:"content"`
	Type          MessageType `json:"type"`
	SentByCoach   bool        `json:"isSentByCoach"`
	AppointmentID *string     `json:"appointmentId"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// ListFilter scopes an appointment listing. Exactly one of CoachID/ClientID is set.
type ListFilter struct {
	CoachID  string
	ClientID string
	Status   Status
	From     *time.Time
	To       *time.Time
	// ExcludeCancelled drops CANCELLED rows regardless of Status.
	ExcludeCancelled bool
	Limit            int
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
