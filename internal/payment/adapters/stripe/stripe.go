package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
)

const (
	ProviderName = "stripe"

	SecondsPerHour = 3600

	MetadataUserID          = "user_id"
	MetadataHours           = "hours"
	MetadataSecondsToCredit = "seconds_to_credit"

	defaultTolerance = 5 * time.Minute
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	tolerance := defaultTolerance
	if raw := readMetadataValue(cfg.Config, "tolerance_seconds"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds < 0 {
			return nil, paymentdomain.ErrInvalidConfig
		}
		tolerance = time.Duration(seconds) * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     tolerance,
		now:           now,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

// Verify checks the Stripe-Signature header. A zero tolerance disables the replay window.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	if a.tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return paymentdomain.ErrInvalidSignature
		}
		skew := a.now().Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > a.tolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentConfirmation, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, true)
	case "checkout.session.async_payment_succeeded":
		return a.parseCheckoutSession(event, false)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string         `json:"id"`
	AmountTotal       int64          `json:"amount_total"`
	Currency          string         `json:"currency"`
	PaymentStatus     string         `json:"payment_status"`
	ClientReferenceID string         `json:"client_reference_id"`
	Created           int64          `json:"created"`
	Metadata          map[string]any `json:"metadata"`
}

// parseCheckoutSession maps a paid checkout session to a confirmation. Completed
// sessions still awaiting an async payment are ignored until Stripe confirms them.
func (a *Adapter) parseCheckoutSession(event stripeEvent, requirePaid bool) (*paymentdomain.PaymentConfirmation, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if requirePaid && !strings.EqualFold(strings.TrimSpace(session.PaymentStatus), "paid") {
		return nil, paymentdomain.ErrEventIgnored
	}

	userID, hours, seconds, err := ParseCreditMetadata(session.Metadata)
	if err != nil {
		return nil, err
	}
	if ref := strings.TrimSpace(session.ClientReferenceID); ref != "" && ref != userID {
		return nil, paymentdomain.ErrInvalidMetadata
	}

	return &paymentdomain.PaymentConfirmation{
		Provider:         ProviderName,
		ProviderEventID:  event.ID,
		EventType:        event.Type,
		PaymentReference: session.ID,
		UserID:           userID,
		Hours:            hours,
		SecondsToCredit:  seconds,
		AmountPaid:       session.AmountTotal,
		Currency:         strings.ToLower(strings.TrimSpace(session.Currency)),
		OccurredAt:       timestamp(session.Created, event.Created),
		Metadata:         session.Metadata,
	}, nil
}

// ParseCreditMetadata reads the three keys written at checkout and checks that the
// seconds figure agrees with the hours bought.
func ParseCreditMetadata(metadata map[string]any) (string, int64, int64, error) {
	userID := readMetadataValue(metadata, MetadataUserID)
	if userID == "" {
		return "", 0, 0, paymentdomain.ErrInvalidMetadata
	}

	hours, err := strconv.ParseInt(readMetadataValue(metadata, MetadataHours), 10, 64)
	if err != nil || hours <= 0 {
		return "", 0, 0, paymentdomain.ErrInvalidMetadata
	}

	seconds, err := strconv.ParseInt(readMetadataValue(metadata, MetadataSecondsToCredit), 10, 64)
	if err != nil || seconds != hours*SecondsPerHour {
		return "", 0, 0, paymentdomain.ErrInvalidMetadata
	}

	return userID, hours, seconds, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
