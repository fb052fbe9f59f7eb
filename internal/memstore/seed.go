package memstore

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/subscription"
	"github.com/semanticallynull/rental-backend/wallet"
)

// Seed is the fixture format read by LoadSeed.
type Seed struct {
	Plans         []pricing.Plan              `yaml:"plans"`
	Bikes         []SeedBike                  `yaml:"bikes"`
	Customers     []SeedCustomer              `yaml:"customers"`
	Subscriptions []subscription.Subscription `yaml:"subscriptions"`
}

type SeedBike struct {
	ID           uuid.UUID `yaml:"id"`
	Label        string    `yaml:"label"`
	IMEI         string    `yaml:"imei"`
	PlanID       uuid.UUID `yaml:"planId"`
	Latitude     float64   `yaml:"latitude"`
	Longitude    float64   `yaml:"longitude"`
	BatteryLevel int       `yaml:"batteryLevel"`
	DisplayName  string    `yaml:"displayName"`
}

type SeedCustomer struct {
	ID              uuid.UUID `yaml:"id"`
	Auth0ID         string    `yaml:"auth0Id"`
	Verified        bool      `yaml:"verified"`
	SecurityDeposit int64     `yaml:"securityDeposit"`
	Balance         int64     `yaml:"balance"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// Apply loads the fixture into the store.
func (s *Store) Apply(seed *Seed) error {
	for _, p := range seed.Plans {
		s.AddPlan(p)
	}
	for _, sb := range seed.Bikes {
		if _, err := s.GetPlan(context.Background(), sb.PlanID); err != nil {
			return fmt.Errorf("bike %s: %w", sb.Label, err)
		}
		b := bike.Bike{
			ID:            sb.ID,
			Label:         sb.Label,
			IMEI:          sb.IMEI,
			Status:        bike.StatusAvailable,
			BatteryLevel:  sb.BatteryLevel,
			Location:      bike.Point(sb.Latitude, sb.Longitude),
			PricingPlanID: sb.PlanID,
		}
		if sb.DisplayName != "" {
			name := sb.DisplayName
			b.DisplayName = &name
		}
		s.AddBike(b)
	}
	for _, sc := range seed.Customers {
		s.addCustomer(sc)
	}
	for _, sub := range seed.Subscriptions {
		s.AddSubscription(sub)
	}
	return nil
}

func (s *Store) addCustomer(sc SeedCustomer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	s.customers[sc.ID] = &customer.Customer{
		ID:        sc.ID,
		Auth0ID:   sc.Auth0ID,
		Verified:  sc.Verified,
		CreatedAt: s.now(),
	}
	seedTx := func(typ wallet.Type, amount int64) {
		if amount <= 0 {
			return
		}
		s.appendLocked(wallet.Transaction{
			ID:        uuid.New(),
			UserID:    sc.ID,
			Type:      typ,
			Amount:    amount,
			Status:    wallet.StatusCompleted,
			Reference: "seed:" + sc.ID.String(),
			CreatedAt: s.now(),
		})
	}
	seedTx(wallet.TypeSecurityDeposit, sc.SecurityDeposit)
	seedTx(wallet.TypeDeposit, sc.Balance)
}
