package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"meeting-intel/internal/common/database"
	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/retry"
	"meeting-intel/internal/models"
	"meeting-intel/internal/research/crmmatch"
)

const contactColumns = "id, first_name, last_name, email, company, title, phone, owner, last_activity, notes"

// PostgresStore reads a crm_contacts table synced from the CRM of record.
type PostgresStore struct {
	db     *database.PostgresClient
	table  string
	policy retry.Policy
}

func NewPostgresStore(db *database.PostgresClient, policy retry.Policy) *PostgresStore {
	return &PostgresStore{db: db, table: "crm_contacts", policy: policy}
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE LOWER(email) = $1 ORDER BY last_activity DESC NULLS LAST LIMIT 1",
		contactColumns, s.table)

	contact, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*models.Contact, error) {
		c, err := scanContact(s.db.QueryRow(ctx, query, strings.ToLower(email)))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return c, err
	})
	if err != nil {
		return nil, apperrors.NewCRMLookupFailedError(BackendPostgres, err)
	}
	return contact, nil
}

func (s *PostgresStore) FindByName(ctx context.Context, q crmmatch.NameQuery) ([]models.Contact, error) {
	query, args := s.nameQuery(q)

	contacts, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]models.Contact, error) {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []models.Contact
		for rows.Next() {
			c, err := scanContact(rows)
			if err != nil {
				return nil, retry.Permanent(err)
			}
			out = append(out, *c)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewCRMLookupFailedError(BackendPostgres, err)
	}
	return contacts, nil
}

func (s *PostgresStore) nameQuery(q crmmatch.NameQuery) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE LOWER(last_name) = LOWER($1)", contactColumns, s.table)
	args := []interface{}{q.LastName}

	if q.FirstNamePrefix {
		b.WriteString(" AND first_name ILIKE $2")
		args = append(args, escapeLike(q.FirstName)+"%")
	} else {
		b.WriteString(" AND LOWER(first_name) = LOWER($2)")
		args = append(args, q.FirstName)
	}

	if q.Company != "" {
		// A blank company would turn the reverse containment into a wildcard.
		b.WriteString(" AND TRIM(company) <> '' AND (company ILIKE $3 OR $4 ILIKE ('%' || company || '%'))")
		args = append(args, "%"+escapeLike(q.Company)+"%", q.Company)
	}

	fmt.Fprintf(&b, " ORDER BY last_activity DESC NULLS LAST LIMIT %d", maxCandidates)
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c                                         models.Contact
		email, company, title, phone, owner, note sql.NullString
		lastActivity                              sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &email, &company, &title, &phone, &owner, &lastActivity, &note); err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Company = company.String
	c.Title = title.String
	c.Phone = phone.String
	c.Owner = owner.String
	c.Notes = note.String
	c.Source = BackendPostgres
	if lastActivity.Valid {
		t := lastActivity.Time
		c.LastActivity = &t
	}
	return &c, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
