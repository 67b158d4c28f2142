package receipt

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/brujulacripto/creditledger/internal/config"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
)

func TestRenderProducesPDF(t *testing.T) {
	renderer := NewRenderer(config.Config{AppName: "creditledger"})
	credit := &paymentdomain.PaymentCredit{
		ID:               snowflake.ID(1),
		PaymentReference: "cs_test_1",
		UserID:           "uid-1",
		SecondsCredited:  18000,
		AmountPaid:       2195,
		Currency:         "usd",
		BalanceAfter:     18300,
		Provider:         "stripe",
		RecordedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data := FromCredit(renderer.AppName(), credit)
	if data.Hours != 5 {
		t.Fatalf("expected 5 hours, got %d", data.Hours)
	}

	out, err := renderer.Render(context.Background(), data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("expected PDF header, got %q", out[:min(len(out), 8)])
	}
}

func TestRenderRejectsEmptyReceipt(t *testing.T) {
	renderer := NewRenderer(config.Config{})
	if _, err := renderer.Render(context.Background(), ReceiptData{}); !errors.Is(err, ErrInvalidReceipt) {
		t.Fatalf("expected ErrInvalidReceipt, got %v", err)
	}
}
