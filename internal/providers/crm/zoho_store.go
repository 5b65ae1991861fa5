package crm

import (
	"context"
	"fmt"
	"strings"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/zoho"
	"meeting-intel/internal/models"
	"meeting-intel/internal/research/crmmatch"
)

// ZohoStore looks contacts up through the Zoho CRM search API.
type ZohoStore struct {
	client *zoho.CRMClient
}

func NewZohoStore(client *zoho.CRMClient) *ZohoStore {
	return &ZohoStore{client: client}
}

func (s *ZohoStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	found, err := s.client.SearchByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.NewCRMLookupFailedError(BackendZoho, err)
	}
	for _, c := range found {
		if strings.EqualFold(strings.TrimSpace(c.Email), email) {
			contact := fromZoho(c)
			return &contact, nil
		}
	}
	return nil, nil
}

func (s *ZohoStore) FindByName(ctx context.Context, q crmmatch.NameQuery) ([]models.Contact, error) {
	found, err := s.client.SearchByCriteria(ctx, nameCriteria(q))
	if err != nil {
		return nil, apperrors.NewCRMLookupFailedError(BackendZoho, err)
	}

	contacts := make([]models.Contact, 0, len(found))
	for _, c := range found {
		contacts = append(contacts, fromZoho(c))
	}
	// Account_Name is a lookup field and cannot be filtered in criteria.
	return filterContacts(contacts, q), nil
}

func nameCriteria(q crmmatch.NameQuery) string {
	op := "equals"
	if q.FirstNamePrefix {
		op = "starts_with"
	}
	return fmt.Sprintf("((Last_Name:equals:%s)and(First_Name:%s:%s))",
		zoho.EscapeCriteriaValue(q.LastName), op, zoho.EscapeCriteriaValue(q.FirstName))
}

func fromZoho(c zoho.Contact) models.Contact {
	out := models.Contact{
		ID:           c.ID,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Email:        c.Email,
		Company:      c.AccountName(),
		Title:        c.Title,
		Phone:        c.Phone,
		LastActivity: c.LastActivity(),
		Notes:        c.Description,
		Source:       BackendZoho,
	}
	if c.Owner != nil {
		out.Owner = c.Owner.Name
	}
	return out
}
