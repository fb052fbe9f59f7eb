package customer_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/memstore"
)

func TestCheckEligible(t *testing.T) {
	store := memstore.New()
	verified, lowDeposit, unverified := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, store.Apply(&memstore.Seed{Customers: []memstore.SeedCustomer{
		{ID: verified, Auth0ID: "verified", Verified: true, SecurityDeposit: 500},
		{ID: lowDeposit, Auth0ID: "low", Verified: true, SecurityDeposit: 200},
		{ID: unverified, Auth0ID: "unverified", SecurityDeposit: 500},
	}}))

	tests := []struct {
		name     string
		user     uuid.UUID
		required int64
		want     error
	}{
		{"verified with deposit", verified, 500, nil},
		{"deposit below requirement", lowDeposit, 500, customer.ErrDepositTooLow},
		{"no deposit required", lowDeposit, 0, nil},
		{"unverified", unverified, 500, customer.ErrUnverified},
		{"unknown rider", uuid.New(), 500, customer.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := customer.NewEligibility(store, store, tt.required).CheckEligible(t.Context(), tt.user)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIneligibleErrorsMapToIneligible(t *testing.T) {
	require.ErrorIs(t, customer.ErrUnverified, fault.ErrIneligible)
	require.ErrorIs(t, customer.ErrDepositTooLow, fault.ErrIneligible)
	require.ErrorIs(t, customer.ErrNotFound, fault.ErrNotFound)
}
