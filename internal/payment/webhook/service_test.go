package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountrepo "github.com/brujulacripto/creditledger/internal/account/repository"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/migration"
	"github.com/brujulacripto/creditledger/internal/payment/adapters"
	"github.com/brujulacripto/creditledger/internal/payment/adapters/stripe"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/payment/repository"
	paymentservice "github.com/brujulacripto/creditledger/internal/payment/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

func TestIngestWebhookCreditsOnce(t *testing.T) {
	svc, db, fakeClock := setupWebhookService(t)
	seedAccount(t, db, "uid-1", 300)

	payload := checkoutPayload(t, "evt_1", "cs_1", "uid-1", 5, 2195)
	headers := signedHeaders(payload, fakeClock.Now())

	if err := svc.IngestWebhook(context.Background(), "stripe", payload, headers); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := balanceOf(t, db, "uid-1"); got != 300+5*3600 {
		t.Fatalf("expected balance %d, got %d", 300+5*3600, got)
	}

	var event paymentdomain.EventRecord
	if err := db.Where("provider = ? AND provider_event_id = ?", "stripe", "evt_1").First(&event).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}

	err := svc.IngestWebhook(context.Background(), "stripe", payload, headers)
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}
	if got := balanceOf(t, db, "uid-1"); got != 300+5*3600 {
		t.Fatalf("redelivery changed the balance to %d", got)
	}
}

func TestIngestWebhookDistinctEventSameSession(t *testing.T) {
	svc, db, fakeClock := setupWebhookService(t)
	seedAccount(t, db, "uid-2", 0)

	completed := checkoutPayload(t, "evt_a", "cs_2", "uid-2", 1, 499)
	if err := svc.IngestWebhook(context.Background(), "stripe", completed, signedHeaders(completed, fakeClock.Now())); err != nil {
		t.Fatalf("ingest completed: %v", err)
	}

	asyncPaid := checkoutPayloadOfType(t, "checkout.session.async_payment_succeeded", "evt_b", "cs_2", "uid-2", 1, 499)
	if err := svc.IngestWebhook(context.Background(), "stripe", asyncPaid, signedHeaders(asyncPaid, fakeClock.Now())); err != nil {
		t.Fatalf("ingest async: %v", err)
	}

	if got := balanceOf(t, db, "uid-2"); got != 3600 {
		t.Fatalf("expected a single credit of 3600, got %d", got)
	}
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	svc, db, fakeClock := setupWebhookService(t)
	seedAccount(t, db, "uid-3", 0)

	payload := checkoutPayload(t, "evt_3", "cs_3", "uid-3", 1, 499)
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=deadbeef", fakeClock.Now().Unix()))

	if err := svc.IngestWebhook(context.Background(), "stripe", payload, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if got := balanceOf(t, db, "uid-3"); got != 0 {
		t.Fatalf("expected no credit, got %d", got)
	}

	var count int64
	if err := db.Model(&paymentdomain.EventRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected unverified payloads to stay unlogged, got %d", count)
	}
}

func TestIngestWebhookUnknownProviderAndIgnoredTypes(t *testing.T) {
	svc, _, fakeClock := setupWebhookService(t)

	if err := svc.IngestWebhook(context.Background(), "paypal", []byte(`{}`), http.Header{}); !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if err := svc.IngestWebhook(context.Background(), "stripe", []byte(`not json`), http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}

	payload := []byte(`{"id":"evt_inv","type":"invoice.paid","created":1,"data":{"object":{"id":"in_1"}}}`)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, signedHeaders(payload, fakeClock.Now())); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestIngestWebhookRetriesAfterFailedCredit(t *testing.T) {
	svc, db, fakeClock := setupWebhookService(t)

	payload := checkoutPayload(t, "evt_retry", "cs_retry", "uid-late", 2, 998)
	headers := signedHeaders(payload, fakeClock.Now())

	if err := svc.IngestWebhook(context.Background(), "stripe", payload, headers); err == nil {
		t.Fatalf("expected missing account to fail the delivery")
	}

	seedAccount(t, db, "uid-late", 0)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, headers); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := balanceOf(t, db, "uid-late"); got != 7200 {
		t.Fatalf("expected 7200 after retry, got %d", got)
	}
}

func setupWebhookService(t *testing.T) (paymentdomain.WebhookService, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		SupportedCurrencies: []string{"usd", "eur"},
		Stripe: config.StripeConfig{
			WebhookSecret:    testSecret,
			WebhookTolerance: 5 * time.Minute,
		},
	}
	repo := repository.Provide()

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Config:   cfg,
		Repo:     repo,
		Accounts: accountrepo.Provide(),
	})

	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Cfg:        cfg,
		Repo:       repo,
		PaymentSvc: paymentSvc,
		Adapters:   adapters.NewRegistry(stripe.NewFactory()),
	})
	return svc, db, fakeClock
}

func checkoutPayload(t *testing.T, eventID, sessionID, userID string, hours, amount int64) []byte {
	return checkoutPayloadOfType(t, "checkout.session.completed", eventID, sessionID, userID, hours, amount)
}

func checkoutPayloadOfType(t *testing.T, eventType, eventID, sessionID, userID string, hours, amount int64) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC).Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":                  sessionID,
				"amount_total":        amount,
				"currency":            "usd",
				"payment_status":      "paid",
				"client_reference_id": userID,
				"metadata": map[string]any{
					"user_id":           userID,
					"hours":             fmt.Sprintf("%d", hours),
					"seconds_to_credit": fmt.Sprintf("%d", hours*3600),
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func signedHeaders(payload []byte, at time.Time) http.Header {
	mac := hmac.New(sha256.New, []byte(testSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", at.Unix(), payload)))
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func seedAccount(t *testing.T, db *gorm.DB, userID string, balance int64) {
	t.Helper()
	if _, err := accountrepo.Provide().InsertIfAbsent(context.Background(), db, userID, balance, time.Now().UTC()); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func balanceOf(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	row, err := accountrepo.Provide().Find(context.Background(), db, userID)
	if err != nil || row == nil {
		t.Fatalf("load balance: %v", err)
	}
	return row.BalanceSeconds
}
