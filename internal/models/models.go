package models

import "time"

// Collection names a remote document collection
type Collection string

const (
	CollectionMessages Collection = "messages"
	CollectionPhotos   Collection = "photos"
	CollectionComments Collection = "photo_comments"
	CollectionPlanner  Collection = "planner"
)

// PlannerDocumentKey is the single remote document holding every planner activity
const PlannerDocumentKey = "activities"

// Person identifies one of the two album owners
type Person string

const (
	PersonA Person = "person_a"
	PersonB Person = "person_b"
)

// Valid reports whether p is one of the two owners
func (p Person) Valid() bool {
	return p == PersonA || p == PersonB
}

// Category classifies a planner activity
type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryStudy    Category = "study"
	CategoryWork     Category = "work"
	CategoryDate     Category = "date"
	CategoryFitness  Category = "fitness"
	CategorySocial   Category = "social"
	CategoryOther    Category = "other"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryPersonal, CategoryStudy, CategoryWork, CategoryDate,
		CategoryFitness, CategorySocial, CategoryOther:
		return true
	}
	return false
}

// SyncState describes where the latest copy of a record lives
type SyncState string

const (
	SyncConfirmed  SyncState = "confirmed"
	SyncPending    SyncState = "pending"
	SyncConflicted SyncState = "conflicted"
)

// Entity is anything the coordinator can upsert by id
type Entity interface {
	EntityID() string
}

// Message represents a note left on the message board
type Message struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"created_at"`
	ServerCreatedAt *time.Time `json:"server_created_at,omitempty"`
}

// EntityID implements Entity
func (m Message) EntityID() string { return m.ID }

// Photo represents a picture in the shared album
type Photo struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"display_name"`
	LocationRef     string     `json:"location_ref"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	ServerCreatedAt *time.Time `json:"server_created_at,omitempty"`
}

// EntityID implements Entity
func (p Photo) EntityID() string { return p.ID }

// Comment represents a single comment in a photo's thread
type Comment struct {
	ID              string     `json:"id"`
	PhotoID         string     `json:"photo_id"`
	Author          Person     `json:"author"`
	Text            string     `json:"text"`
	CreatedAt       time.Time  `json:"created_at"`
	ServerCreatedAt *time.Time `json:"server_created_at,omitempty"`
}

// EntityID implements Entity
func (c Comment) EntityID() string { return c.ID }

// PlannerActivity represents one entry of the weekly planner.
// Date is a calendar date (2006-01-02), times are wall clock (15:04).
type PlannerActivity struct {
	ID          string    `json:"id"`
	Owner       Person    `json:"owner"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Category    Category  `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityID implements Entity
func (a PlannerActivity) EntityID() string { return a.ID }

// PlannerDocument is the remote payload of the planner collection
type PlannerDocument struct {
	Activities  []PlannerActivity `json:"activities"`
	LastUpdated time.Time         `json:"last_updated"`
}
