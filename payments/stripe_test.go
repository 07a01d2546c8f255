package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventType, metadata string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1", "object": "event", "type": %q,
		"data": {"object": {"id": "pi_123", "object": "payment_intent", "amount": 1000, "metadata": %s}}
	}`, eventType, metadata))
}

func TestVerifyPaymentIntentAcceptsSignedEvent(t *testing.T) {
	payload := eventPayload("payment_intent.succeeded", `{"user_id": "7", "tournament_id": "3"}`)

	intent, err := verifyPaymentIntent(payload, sign(payload, testSecret), testSecret)
	if err != nil {
		t.Fatalf("verifyPaymentIntent: %v", err)
	}
	conf, err := confirmationFromIntent(intent)
	if err != nil {
		t.Fatalf("confirmationFromIntent: %v", err)
	}
	if conf.UserID != 7 || conf.TournamentID != 3 || conf.PaymentReference != "pi_123" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	if !conf.Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Amount = %s, want 10", conf.Amount)
	}
}

func TestVerifyPaymentIntentRejectsBadSignature(t *testing.T) {
	payload := eventPayload("payment_intent.succeeded", `{}`)

	_, err := verifyPaymentIntent(payload, sign(payload, "whsec_other"), testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyPaymentIntentIgnoresOtherEvents(t *testing.T) {
	payload := eventPayload("charge.refunded", `{}`)

	_, err := verifyPaymentIntent(payload, sign(payload, testSecret), testSecret)
	if !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("err = %v, want ErrIgnoredEvent", err)
	}
}

func TestConfirmationRequiresMetadata(t *testing.T) {
	payload := eventPayload("payment_intent.succeeded", `{"user_id": "7"}`)

	intent, err := verifyPaymentIntent(payload, sign(payload, testSecret), testSecret)
	if err != nil {
		t.Fatalf("verifyPaymentIntent: %v", err)
	}
	if _, err := confirmationFromIntent(intent); !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("err = %v, want ErrMissingMetadata", err)
	}
}
