package contacts

import (
	"errors"
	"time"
)

// ContactType discriminates the two kinds of account holders. Doctors and
// chemists share one table and one ledger; the type only drives display and
// filtering.
type ContactType string

const (
	// TypeDoctor marks prescribing contacts.
	TypeDoctor ContactType = "doctor"
	// TypeChemist marks dispensing contacts.
	TypeChemist ContactType = "chemist"
)

// Known reports whether t is a recognised contact type.
func (t ContactType) Known() bool {
	return t == TypeDoctor || t == TypeChemist
}

// Contact is an account holder visited by field reps.
type Contact struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Type      ContactType `json:"contact_type"`
	Phone     string      `json:"phone,omitempty"`
	Address   string      `json:"address,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CreateInput carries fields for a new contact.
type CreateInput struct {
	Name    string
	Type    ContactType
	Phone   string
	Address string
	ActorID int64
}

// UpdateInput carries mutable fields for an existing contact.
type UpdateInput struct {
	Name    string
	Type    ContactType
	Phone   string
	Address string
	ActorID int64
}

// ListFilter narrows contact listings.
type ListFilter struct {
	Type    ContactType
	Search  string
	Page    int
	PerPage int
}

var (
	// ErrContactNotFound indicates a missing contact.
	ErrContactNotFound = errors.New("contacts: contact not found")
	// ErrNameRequired indicates a blank contact name.
	ErrNameRequired = errors.New("contacts: name required")
	// ErrUnknownType indicates an unrecognised contact type.
	ErrUnknownType = errors.New("contacts: unknown contact type")
)
