package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loadline/closer/internal/db"
	"github.com/loadline/closer/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testDB(t)
	return newRouter(gdb), gdb
}

func get(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	body := map[string]json.RawMessage{}
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s: invalid JSON: %v", path, err)
		}
	}
	return w, body
}

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t)
	w, _ := get(t, router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestNegotiationListFiltersByStatus(t *testing.T) {
	router, gdb := testRouter(t)
	driver := models.Driver{Email: "d@example.com"}
	gdb.Create(&driver)
	load1 := models.Load{RefID: "LD-1"}
	load2 := models.Load{RefID: "LD-2"}
	gdb.Create(&load1)
	gdb.Create(&load2)
	gdb.Create(&models.Negotiation{DriverID: driver.ID, LoadID: load1.ID, Status: "CLOSING"})
	gdb.Create(&models.Negotiation{DriverID: driver.ID, LoadID: load2.ID, Status: "LOST"})

	w, body := get(t, router, "/api/negotiations?status=CLOSING")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var negotiations []models.Negotiation
	if err := json.Unmarshal(body["negotiations"], &negotiations); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(negotiations) != 1 || negotiations[0].Status != "CLOSING" {
		t.Fatalf("negotiations = %+v", negotiations)
	}
}

func TestNegotiationDetailIncludesMessages(t *testing.T) {
	router, gdb := testRouter(t)
	driver := models.Driver{Email: "d@example.com"}
	gdb.Create(&driver)
	load := models.Load{RefID: "LD-1"}
	gdb.Create(&load)
	neg := models.Negotiation{DriverID: driver.ID, LoadID: load.ID, Status: "COUNTERING"}
	gdb.Create(&neg)
	gdb.Create(&models.Message{NegotiationID: neg.ID, Sender: models.SenderBroker, Body: "Can do $1,850"})
	gdb.Create(&models.Message{NegotiationID: neg.ID, Sender: models.SenderSystem, Body: "YELLOW ZONE (ratio 0.93): Countering at $2,160."})

	w, body := get(t, router, "/api/negotiations/1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got models.Negotiation
	if err := json.Unmarshal(body["negotiation"], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[1].Sender != models.SenderSystem {
		t.Errorf("message order not preserved: %+v", got.Messages)
	}
}

func TestNegotiationDetailNotFound(t *testing.T) {
	router, _ := testRouter(t)
	w, _ := get(t, router, "/api/negotiations/999")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestNegotiationDetailBadID(t *testing.T) {
	router, _ := testRouter(t)
	w, _ := get(t, router, "/api/negotiations/abc")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestLedgerEndpointExposesNetProfit(t *testing.T) {
	router, gdb := testRouter(t)
	referrer := uint(9)
	gdb.Create(&models.FeeLedgerEntry{
		NegotiationID:      3,
		DriverID:           1,
		GrossCents:         210000,
		TotalFeeCents:      5250,
		DriverCreditsCents: 1105,
		InfraReserveCents:  1105,
		TreasuryCents:      1382,
		PlatformCents:      1658,
		ReferralCents:      500,
		ReferrerID:         &referrer,
	})

	w, body := get(t, router, "/api/negotiations/3/ledger")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var net int64
	if err := json.Unmarshal(body["platform_net_cents"], &net); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if net != 1158 {
		t.Fatalf("platform_net_cents = %d, want 1158", net)
	}
}

func TestTriageListsUnresolvedOnly(t *testing.T) {
	router, gdb := testRouter(t)
	gdb.Create(&models.UnroutedMessage{From: "a@x", Subject: "?", Resolved: false})
	gdb.Create(&models.UnroutedMessage{From: "b@x", Subject: "done", Resolved: true})

	w, body := get(t, router, "/api/triage")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rows []models.UnroutedMessage
	if err := json.Unmarshal(body["unrouted"], &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].From != "a@x" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestInvoiceListFiltersByDriver(t *testing.T) {
	router, gdb := testRouter(t)
	gdb.Create(&models.Invoice{DriverID: 1, NegotiationID: 1, FeeCents: 100, Status: models.InvoicePending})
	gdb.Create(&models.Invoice{DriverID: 2, NegotiationID: 2, FeeCents: 200, Status: models.InvoicePaid})

	w, body := get(t, router, "/api/invoices?driver_id=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var invoices []models.Invoice
	if err := json.Unmarshal(body["invoices"], &invoices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(invoices) != 1 || invoices[0].DriverID != 2 {
		t.Fatalf("invoices = %+v", invoices)
	}
}

func TestReferralTotals(t *testing.T) {
	router, gdb := testRouter(t)
	gdb.Create(&models.ReferralEarning{ReferrerID: 5, ReferredDriverID: 6, NegotiationID: 1, AmountCents: 500, Status: models.ReferralPending})
	gdb.Create(&models.ReferralEarning{ReferrerID: 5, ReferredDriverID: 6, NegotiationID: 2, AmountCents: 250, Status: models.ReferralPending})

	w, body := get(t, router, "/api/drivers/5/referrals")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var total int64
	if err := json.Unmarshal(body["total_cents"], &total); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if total != 750 {
		t.Fatalf("total_cents = %d, want 750", total)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	router, _ := testRouter(t)
	w, _ := get(t, router, "/api/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
