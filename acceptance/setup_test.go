package acceptance

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/semanticallynull/rental-backend/api"
	"github.com/semanticallynull/rental-backend/billing"
	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/incident"
	"github.com/semanticallynull/rental-backend/internal/auth0"
	"github.com/semanticallynull/rental-backend/internal/memstore"
	"github.com/semanticallynull/rental-backend/internal/middleware"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/payment"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/sweeper"
	"github.com/semanticallynull/rental-backend/unlock"
	"github.com/semanticallynull/rental-backend/wallet"
)

const (
	webhookSecret   = "whsec_acceptance"
	ceiling         = 100
	requiredDeposit = 500
)

// clock is a settable time source shared by every service under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type TestServer struct {
	Router   *gin.Engine
	Store    *memstore.Store
	Clock    *clock
	Events   *notify.Recorder
	Gateway  *payment.FakeGateway
	Profiles *auth0.FakeClient
	Sweeper  *sweeper.Sweeper
	Plan     pricing.Plan
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	clk := &clock{t: time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New().WithClock(clk.Now)
	events := &notify.Recorder{}
	gateway := payment.NewFakeGateway()
	profiles := auth0.NewFakeClient()

	plan := store.AddPlan(pricing.Plan{Name: "standard", HourlyRate: 120, DailyRate: 600, WeeklyRate: 3000, MonthlyRate: 9000})

	engine := billing.NewEngine(time.UTC)
	ledger := wallet.NewLedger(store, ceiling, logger)
	eligibility := customer.NewEligibility(store, ledger, requiredDeposit)
	tracker := ride.NewTracker(store, store, store, store, engine, logger).WithClock(clk.Now)

	svc := api.Services{
		Bikes:     store,
		Customers: store,
		Reservations: reservation.NewManager(store, store, store, eligibility, events, logger).
			WithClock(clk.Now),
		Unlocks:   unlock.NewGate(store, eligibility, events, logger).WithClock(clk.Now),
		Rides:     store,
		Tracker:   tracker,
		Locks:     lock.NewGate(store, store, tracker, ledger, events, logger).WithClock(clk.Now),
		Incidents: incident.NewHook(store, events, logger),
		Wallet:    ledger,
		Payments:  gateway,
		Profiles:  profiles,
		Hub:       notify.NewHub(),
		Notifier:  events,
	}
	cfg := api.Config{
		Auth:                middleware.FakeAuth(),
		MetricsUsername:     "metrics",
		MetricsPassword:     "metrics",
		FeedUsername:        "feed",
		FeedPassword:        "feed",
		StripeWebhookSecret: webhookSecret,
	}
	a := api.New(svc, cfg, logger, prometheus.NewRegistry())

	sw := sweeper.New(store, store, store, store, events, logger, sweeper.DefaultConfig()).WithClock(clk.Now)

	return &TestServer{
		Router:   a.Router(),
		Store:    store,
		Clock:    clk,
		Events:   events,
		Gateway:  gateway,
		Profiles: profiles,
		Sweeper:  sw,
		Plan:     plan,
	}
}

// CreateTestBike registers an available bike on the standard plan.
func (ts *TestServer) CreateTestBike(t *testing.T, label string) uuid.UUID {
	t.Helper()
	b := ts.Store.AddBike(bike.Bike{
		Label:         label,
		IMEI:          "IMEI-" + label,
		Location:      bike.Point(-1.2921, 36.8219),
		BatteryLevel:  90,
		PricingPlanID: ts.Plan.ID,
	})
	return b.ID
}

// CreateTestRider seeds a verified customer with a security deposit and the
// given spendable balance and returns the headers that authenticate as them.
func (ts *TestServer) CreateTestRider(t *testing.T, auth0ID string, balance int64) (uuid.UUID, map[string]string) {
	t.Helper()
	id := uuid.New()
	err := ts.Store.Apply(&memstore.Seed{Customers: []memstore.SeedCustomer{{
		ID:              id,
		Auth0ID:         auth0ID,
		Verified:        true,
		SecurityDeposit: requiredDeposit,
		Balance:         balance,
	}}})
	if err != nil {
		t.Fatalf("failed to seed rider: %v", err)
	}
	return id, map[string]string{"X-User-ID": auth0ID}
}

var adminHeaders = map[string]string{"X-User-ID": "admin-1", "X-Admin": "true"}

func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

// webhook delivers a Stripe event signed with the test secret.
func (ts *TestServer) webhook(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(sp.Payload))
	req.Header.Set("Stripe-Signature", sp.Header)
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response: %v: %s", err, w.Body.String())
	}
	return v
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type requestResponse struct {
	ID              uuid.UUID  `json:"id"`
	BikeID          uuid.UUID  `json:"bikeId"`
	RideID          *uuid.UUID `json:"rideId"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejectionReason"`
}

type rideResponse struct {
	ID      uuid.UUID  `json:"id"`
	BikeID  uuid.UUID  `json:"bikeId"`
	Status  string     `json:"status"`
	EndTime *time.Time `json:"endTime"`
	Cost    *int64     `json:"cost"`
	Charged *int64     `json:"charged"`
	Covered bool       `json:"covered"`
}

type resolveResponse struct {
	Request    requestResponse     `json:"request"`
	Ride       *rideResponse       `json:"ride"`
	Settlement *billing.Settlement `json:"settlement"`
}

type walletResponse struct {
	Balance         int64                `json:"balance"`
	SecurityDeposit int64                `json:"securityDeposit"`
	Transactions    []wallet.Transaction `json:"transactions"`
}

// startRide takes a bike from AVAILABLE to an active ride through the
// unlock gate and returns the ride ID.
func (ts *TestServer) startRide(t *testing.T, rider map[string]string, bikeID uuid.UUID) uuid.UUID {
	t.Helper()
	w := ts.POST("/unlock-requests", map[string]any{
		"bikeId":        bikeID,
		"paymentMethod": "wallet",
		"inspection":    map[string]any{"checklist": map[string]bool{"brakes": true, "lights": true}},
	}, rider)
	expectStatus(t, w, http.StatusAccepted)
	req := decode[requestResponse](t, w)

	w = ts.POST("/admin/unlock-requests/"+req.ID.String()+"/resolve", map[string]any{"decision": "APPROVED"}, adminHeaders)
	expectStatus(t, w, http.StatusOK)
	resolved := decode[resolveResponse](t, w)
	if resolved.Ride == nil {
		t.Fatalf("approval returned no ride: %s", w.Body.String())
	}
	return resolved.Ride.ID
}

// requestLock files a lock request for rideID and returns its ID.
func (ts *TestServer) requestLock(t *testing.T, rider map[string]string, rideID uuid.UUID) uuid.UUID {
	t.Helper()
	w := ts.POST("/lock-requests", map[string]any{
		"rideId":    rideID,
		"latitude":  -1.2864,
		"longitude": 36.8172,
	}, rider)
	expectStatus(t, w, http.StatusAccepted)
	return decode[requestResponse](t, w).ID
}

func (ts *TestServer) bikeStatus(t *testing.T, id uuid.UUID) bike.Status {
	t.Helper()
	b, err := ts.Store.GetBikeByID(t.Context(), id)
	if err != nil {
		t.Fatalf("failed to load bike: %v", err)
	}
	return b.Status
}
