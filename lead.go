package leadcapture

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrDuplicatedLead = errors.New("email already in use")
	ErrLeadNotFound   = errors.New("lead not found")
)

// FormInput is the set of values a visitor fills in before submitting.
type FormInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Industry string `json:"industry"`
}

// Normalize trims every field and turns the industry into its category key.
func (in FormInput) Normalize() FormInput {
	return FormInput{
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.TrimSpace(in.Email),
		Industry: IndustryKey(in.Industry),
	}
}

// Lead is a submission the remote endpoint accepted during this session.
type Lead struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Industry    string    `json:"industry"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// LeadStore keeps the leads of the running session in submission order.
type LeadStore interface {
	// Append adds lead to the end of the store and returns its 1-indexed
	// sequence number.
	Append(lead Lead) int
	All() []Lead
	Count() int
}

// StoredLead is a lead persisted by the ingestion endpoint.
type StoredLead struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Industry  string    `json:"industry" db:"industry"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type LeadService interface {
	Create(ctx context.Context, newLead StoredLead) error
	GetByID(ctx context.Context, id string) (StoredLead, error)
}
