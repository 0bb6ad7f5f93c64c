package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	leadcapture "github.com/phbpx/leadcapture"
)

// lib/pq errorCodeNames
// https://github.com/lib/pq/blob/master/error.go#L178
const uniqueViolation = "23505"

type LeadService struct {
	db *sqlx.DB
}

func NewLeadService(db *sqlx.DB) leadcapture.LeadService {
	return &LeadService{
		db: db,
	}
}

func (ls LeadService) Create(ctx context.Context, lead leadcapture.StoredLead) error {
	query := `
	INSERT INTO leads (
		id, name, email, industry, created_at
	) VALUES (
		:id, :name, :email, :industry, :created_at
	)`

	if _, err := ls.db.NamedExecContext(ctx, query, lead); err != nil {
		var pqerr *pq.Error
		if errors.As(err, &pqerr) && pqerr.Code == uniqueViolation {
			return leadcapture.ErrDuplicatedLead
		}
		return err
	}

	return nil
}

func (ls LeadService) GetByID(ctx context.Context, id string) (leadcapture.StoredLead, error) {
	query := `
	SELECT
		id,
		name,
		email,
		industry,
		created_at
	FROM leads
	WHERE id=$1`

	var lead leadcapture.StoredLead
	if err := ls.db.GetContext(ctx, &lead, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lead, leadcapture.ErrLeadNotFound
		}
		return lead, err
	}

	return lead, nil
}
