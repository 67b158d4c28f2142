// Package receipt renders PDF receipts for credited payments.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brujulacripto/creditledger/internal/config"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/pricing"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotoconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrInvalidReceipt = errors.New("invalid_receipt")

type ReceiptData struct {
	AppName          string
	PaymentReference string
	UserID           string
	PaidAt           time.Time
	Hours            int64
	SecondsCredited  int64
	AmountPaid       int64
	Currency         string
	BalanceAfter     int64
	Provider         string
}

// FromCredit builds receipt data from a stored credit record.
func FromCredit(appName string, credit *paymentdomain.PaymentCredit) ReceiptData {
	return ReceiptData{
		AppName:          appName,
		PaymentReference: credit.PaymentReference,
		UserID:           credit.UserID,
		PaidAt:           credit.RecordedAt,
		Hours:            credit.SecondsCredited / pricing.SecondsPerHour,
		SecondsCredited:  credit.SecondsCredited,
		AmountPaid:       credit.AmountPaid,
		Currency:         credit.Currency,
		BalanceAfter:     credit.BalanceAfter,
		Provider:         credit.Provider,
	}
}

type Renderer struct {
	appName string
}

func NewRenderer(cfg config.Config) *Renderer {
	return &Renderer{appName: cfg.AppName}
}

func (r *Renderer) AppName() string {
	return r.appName
}

func (r *Renderer) Render(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if strings.TrimSpace(receipt.PaymentReference) == "" || receipt.SecondsCredited <= 0 {
		return nil, ErrInvalidReceipt
	}

	cfg := marotoconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Receipt"
	if receipt.AppName != "" {
		title = receipt.AppName + " receipt"
	}
	m.AddRow(20,
		text.NewCol(12, title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Payment reference: "+receipt.PaymentReference, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.PaidAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{Top: 5}),
			text.New("Account: "+receipt.UserID, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Provider: "+receipt.Provider, props.Text{Top: 0, Align: align.Right}),
		),
	)

	amount := fmt.Sprintf("%s %s", pricing.FormatMinor(receipt.AmountPaid), strings.ToUpper(receipt.Currency))
	m.AddRow(15,
		text.NewCol(12, amount+" paid", props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Hours", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Seconds", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(6, "Prepaid usage time", props.Text{Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d", receipt.Hours), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, fmt.Sprintf("%d", receipt.SecondsCredited), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, pricing.FormatMinor(receipt.AmountPaid), props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Balance after", props.Text{Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d s", receipt.BalanceAfter), props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
