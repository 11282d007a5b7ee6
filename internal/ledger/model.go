package ledger

import (
	"slices"
	"time"
)

// Role distinguishes the two kinds of actors on the marketplace.
type Role string

const (
	RoleRestaurant  Role = "restaurant"
	RoleAssociation Role = "association"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleRestaurant || r == RoleAssociation
}

// Actor is the authenticated caller of every ledger operation.
type Actor struct {
	ID   string
	Role Role
}

// Kind selects the record family for listing and transitions.
type Kind string

const (
	KindAnnouncement   Kind = "announcement"
	KindNeed           Kind = "need"
	KindReservation    Kind = "reservation"
	KindHelpCommitment Kind = "help_commitment"
)

// Collection names the table backing each kind.
const (
	CollectionAnnouncements   = "announcements"
	CollectionNeeds           = "needs"
	CollectionReservations    = "reservations"
	CollectionHelpCommitments = "aides"
	CollectionActorProfiles   = "actor_profiles"
)

// ParseKind validates raw input and returns a Kind.
func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(raw); kind {
	case KindAnnouncement, KindNeed, KindReservation, KindHelpCommitment:
		return kind, nil
	default:
		return "", &ValidationError{Field: "kind", Reason: "unknown record kind"}
	}
}

func (k Kind) collection() string {
	switch k {
	case KindAnnouncement:
		return CollectionAnnouncements
	case KindNeed:
		return CollectionNeeds
	case KindReservation:
		return CollectionReservations
	case KindHelpCommitment:
		return CollectionHelpCommitments
	}
	return ""
}

// AnnouncementState tracks whether an offer can still be reserved.
type AnnouncementState string

const (
	AnnouncementAvailable AnnouncementState = "available"
	AnnouncementExpired   AnnouncementState = "expired"
)

// Urgency ranks a posted need.
type Urgency string

const (
	UrgencyNonUrgent  Urgency = "non_urgent"
	UrgencyUrgent     Urgency = "urgent"
	UrgencyVeryUrgent Urgency = "very_urgent"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyVeryUrgent:
		return 0
	case UrgencyUrgent:
		return 1
	default:
		return 2
	}
}

// Categories is the fixed enumeration offered items and needs are filed under.
var Categories = []string{
	"bakery",
	"fruits_vegetables",
	"dairy",
	"meat_fish",
	"prepared_meals",
	"dry_goods",
	"beverages",
	"other",
}

// IsCategory reports whether value belongs to Categories.
func IsCategory(value string) bool {
	return slices.Contains(Categories, value)
}

// Status is the exchange state shared by reservations and help commitments.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRefused   Status = "refused"
	StatusArchived  Status = "archived"
)

// ParseStatus validates raw input and returns a Status.
func ParseStatus(raw string) (Status, error) {
	switch status := Status(raw); status {
	case StatusPending, StatusConfirmed, StatusRefused, StatusArchived:
		return status, nil
	default:
		return "", &ValidationError{Field: "status", Reason: "unknown status"}
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusArchived
}

// CanTransitionTo applies the exchange state machine.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusRefused || next == StatusArchived
	case StatusConfirmed, StatusRefused:
		return next == StatusArchived
	default:
		return false
	}
}

// Record is implemented by every listable ledger document.
type Record interface {
	RecordID() string
	RecordKind() Kind
	RecordCreatedAt() time.Time
}

// Announcement is a restaurant's advertised surplus-food offer.
type Announcement struct {
	ID             string            `gorm:"column:id;primaryKey;size:64" json:"id"`
	OwnerID        string            `gorm:"column:owner_id;size:64;not null;index:idx_announcements_owner_created,priority:1" json:"owner_id"`
	OfferedItem    string            `gorm:"column:offered_item;size:255;not null" json:"offered_item"`
	Quantity       string            `gorm:"column:quantity;size:64;not null" json:"quantity"`
	Category       string            `gorm:"column:category;size:32;not null" json:"category"`
	Description    string            `gorm:"column:description;type:text" json:"description,omitempty"`
	ExpirationDate time.Time         `gorm:"column:expiration_date;not null" json:"expiration_date"`
	State          AnnouncementState `gorm:"column:state;size:16;not null;index" json:"state"`
	Version        int64             `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt      time.Time         `gorm:"column:created_at;not null;index:idx_announcements_owner_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

func (Announcement) TableName() string {
	return CollectionAnnouncements
}

func (a Announcement) RecordID() string           { return a.ID }
func (a Announcement) RecordKind() Kind           { return KindAnnouncement }
func (a Announcement) RecordCreatedAt() time.Time { return a.CreatedAt }

// Reservable reports whether the announcement can be claimed at the given instant.
func (a Announcement) Reservable(now time.Time) bool {
	return a.State == AnnouncementAvailable && a.ExpirationDate.After(now)
}

// Need is an association's posted request for donations.
type Need struct {
	ID                 string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	OwnerID            string    `gorm:"column:owner_id;size:64;not null;index:idx_needs_owner_created,priority:1" json:"owner_id"`
	RequestedItem      string    `gorm:"column:requested_item;size:255;not null" json:"requested_item"`
	Quantity           string    `gorm:"column:quantity;size:64;not null" json:"quantity"`
	Category           string    `gorm:"column:category;size:32;not null" json:"category"`
	Urgency            Urgency   `gorm:"column:urgency;size:16;not null" json:"urgency"`
	TargetAudience     string    `gorm:"column:target_audience;type:text" json:"target_audience"`
	RespondingActorIDs []string  `gorm:"column:responding_actor_ids;type:text;serializer:json" json:"responding_actor_ids"`
	Version            int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt          time.Time `gorm:"column:created_at;not null;index:idx_needs_owner_created,priority:2" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

func (Need) TableName() string {
	return CollectionNeeds
}

func (n Need) RecordID() string           { return n.ID }
func (n Need) RecordKind() Kind           { return KindNeed }
func (n Need) RecordCreatedAt() time.Time { return n.CreatedAt }

// AnsweredBy reports whether actorID already committed help to the need.
func (n Need) AnsweredBy(actorID string) bool {
	return slices.Contains(n.RespondingActorIDs, actorID)
}

// Reservation is an association's claim on an announcement.
type Reservation struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	AnnouncementID string    `gorm:"column:announcement_id;size:64;not null;index" json:"announcement_id"`
	RestaurantID   string    `gorm:"column:restaurant_id;size:64;not null;index" json:"restaurant_id"`
	AssociationID  string    `gorm:"column:association_id;size:64;not null;index" json:"association_id"`
	PickupAt       time.Time `gorm:"column:pickup_at;not null" json:"pickup_at"`
	Status         Status    `gorm:"column:status;size:16;not null" json:"status"`
	Version        int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

func (Reservation) TableName() string {
	return CollectionReservations
}

func (r Reservation) RecordID() string           { return r.ID }
func (r Reservation) RecordKind() Kind           { return KindReservation }
func (r Reservation) RecordCreatedAt() time.Time { return r.CreatedAt }

// HelpCommitment is a restaurant's pledge to fulfil part of a need.
type HelpCommitment struct {
	ID                string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	NeedID            string    `gorm:"column:need_id;size:64;not null;index" json:"need_id"`
	RestaurantID      string    `gorm:"column:restaurant_id;size:64;not null;index" json:"restaurant_id"`
	AssociationID     string    `gorm:"column:association_id;size:64;not null;index" json:"association_id"`
	CommittedQuantity string    `gorm:"column:committed_quantity;size:64;not null" json:"committed_quantity"`
	PickupAt          time.Time `gorm:"column:pickup_at;not null" json:"pickup_at"`
	Status            Status    `gorm:"column:status;size:16;not null" json:"status"`
	Version           int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt         time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

func (HelpCommitment) TableName() string {
	return CollectionHelpCommitments
}

func (c HelpCommitment) RecordID() string           { return c.ID }
func (c HelpCommitment) RecordKind() Kind           { return KindHelpCommitment }
func (c HelpCommitment) RecordCreatedAt() time.Time { return c.CreatedAt }

// ActorProfile holds the public details and informational counters of an actor.
type ActorProfile struct {
	ID                 string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Role               Role      `gorm:"column:role;size:16;not null;index" json:"role"`
	Email              string    `gorm:"column:email;size:320;not null" json:"email"`
	DisplayName        string    `gorm:"column:display_name;size:255;not null" json:"display_name"`
	Phone              string    `gorm:"column:phone;size:64" json:"phone,omitempty"`
	Address            string    `gorm:"column:address;size:512" json:"address,omitempty"`
	RegistrationNumber string    `gorm:"column:registration_number;size:64;not null;uniqueIndex" json:"registration_number"`
	AnnouncementCount  int64     `gorm:"column:announcement_count;not null;default:0" json:"announcement_count"`
	NeedCount          int64     `gorm:"column:need_count;not null;default:0" json:"need_count"`
	CreatedAt          time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

func (ActorProfile) TableName() string {
	return CollectionActorProfiles
}

// Actor returns the ledger identity for the profile.
func (p ActorProfile) Actor() Actor {
	return Actor{ID: p.ID, Role: p.Role}
}

// Models lists every document type for schema migration.
func Models() []any {
	return []any{&Announcement{}, &Need{}, &Reservation{}, &HelpCommitment{}, &ActorProfile{}}
}
