package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/customer"
)

func (s *Store) GetCustomer(_ context.Context, id uuid.UUID) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetCustomerByAuth0ID(_ context.Context, auth0ID string) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.customerByAuth0ID(auth0ID)
	if c == nil {
		return nil, customer.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) customerByAuth0ID(auth0ID string) *customer.Customer {
	for _, c := range s.customers {
		if c.Auth0ID == auth0ID {
			return c
		}
	}
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, auth0ID string) (*customer.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.customerByAuth0ID(auth0ID)
	if c == nil {
		c = &customer.Customer{ID: uuid.New(), Auth0ID: auth0ID, CreatedAt: s.now()}
		s.customers[c.ID] = c
	}
	cp := *c
	return &cp, nil
}

func (s *Store) AddStripeIDToCustomer(_ context.Context, auth0ID, stripeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.customerByAuth0ID(auth0ID); c != nil {
		c.StripeID.String, c.StripeID.Valid = stripeID, true
	}
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, auth0ID, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.customerByAuth0ID(auth0ID); c != nil {
		c.Email.String, c.Email.Valid = email, email != ""
		c.Name.String, c.Name.Valid = name, name != ""
	}
	return nil
}

func (s *Store) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return customer.ErrNotFound
	}
	c.Verified = verified
	return nil
}
