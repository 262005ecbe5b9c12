package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPPaymentClientCreateCharge(t *testing.T) {
	var seen chargePayload
	var idemHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/charges" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		idemHeader = r.Header.Get("Idempotency-Key")
		json.NewDecoder(r.Body).Decode(&seen)
		json.NewEncoder(w).Encode(chargeResponse{Ref: "ch_1", Status: "paid"})
	}))
	defer srv.Close()

	c, err := NewHTTPPaymentClient(srv.URL, "tok")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := c.CreateCharge(context.Background(), ChargeRequest{
		DriverRef:      "cus_1",
		AmountCents:    5250,
		IdempotencyKey: "billing-1-2026-08-28",
		Description:    "Dispatch fees",
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if !res.Paid || res.Ref != "ch_1" {
		t.Fatalf("result = %+v", res)
	}
	if seen.AmountCents != 5250 || seen.IdempotencyKey != "billing-1-2026-08-28" {
		t.Errorf("payload = %+v", seen)
	}
	if idemHeader != "billing-1-2026-08-28" {
		t.Errorf("Idempotency-Key header = %q", idemHeader)
	}
}

func TestHTTPPaymentClientDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{Ref: "ch_2", Status: "declined"})
	}))
	defer srv.Close()

	c, _ := NewHTTPPaymentClient(srv.URL, "")
	res, err := c.CreateCharge(context.Background(), ChargeRequest{IdempotencyKey: "k"})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if res.Paid {
		t.Fatal("declined charge reported paid")
	}
}

func TestHTTPPaymentClientRetrieveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, _ := NewHTTPPaymentClient(srv.URL, "")
	_, err := c.RetrieveCharge(context.Background(), "billing-1-2026-08-28")
	if !errors.Is(err, ErrChargeNotFound) {
		t.Fatalf("err = %v, want ErrChargeNotFound", err)
	}
}

func TestHTTPPaymentClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewHTTPPaymentClient(srv.URL, "")
	if _, err := c.CreateCharge(context.Background(), ChargeRequest{}); err == nil {
		t.Fatal("500 reported as success")
	}
}
