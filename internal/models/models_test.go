package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestNegotiation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Negotiation{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "DriverID", "uniqueIndex:uq_negotiations_driver_load")
	assertGormTag(t, typ, "LoadID", "uniqueIndex:uq_negotiations_driver_load")
	assertGormTag(t, typ, "Status", "default:INITIATING")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "PendingBody", "type:text")
	assertGormTag(t, typ, "LastTransitionAt", "index")

	assertFieldType(t, typ, "FloorCents", "int64")
	assertFieldType(t, typ, "CurrentCents", "int64")
	assertFieldType(t, typ, "PendingCents", "int64")
}

func TestNegotiation_Relations(t *testing.T) {
	typ := reflect.TypeOf(Negotiation{})

	assertGormTag(t, typ, "Driver", "foreignKey:DriverID")
	assertGormTag(t, typ, "Load", "foreignKey:LoadID")
	assertGormTag(t, typ, "Messages", "foreignKey:NegotiationID")

	assertFieldType(t, typ, "Messages", "[]models.Message")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "NegotiationID", "index")
	assertGormTag(t, typ, "Body", "type:text")
	assertGormTag(t, typ, "DedupeKey", "index")
	assertGormTag(t, typ, "Suppressed", "default:false")

	assertFieldType(t, typ, "OfferCents", "*int64")
}

func TestOutboundIntent_Fields(t *testing.T) {
	typ := reflect.TypeOf(OutboundIntent{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:26")
	assertGormTag(t, typ, "IdempotencyKey", "uniqueIndex")
	assertGormTag(t, typ, "Status", "default:pending")

	assertFieldType(t, typ, "SentAt", "*time.Time")
}

func TestFeeLedgerEntry_Fields(t *testing.T) {
	typ := reflect.TypeOf(FeeLedgerEntry{})

	assertGormTag(t, typ, "NegotiationID", "uniqueIndex")
	assertGormTag(t, typ, "GrossCents", "not null")
	assertGormTag(t, typ, "ReferralCents", "default:0")

	assertFieldType(t, typ, "ReferrerID", "*uint")
}

func TestFeeLedgerEntry_PlatformNetCents(t *testing.T) {
	e := FeeLedgerEntry{PlatformCents: 1658, ReferralCents: 500}
	if got := e.PlatformNetCents(); got != 1158 {
		t.Errorf("PlatformNetCents = %d, want 1158", got)
	}

	// The accessor never goes negative even if the bounty exceeds the slice.
	e = FeeLedgerEntry{PlatformCents: 100, ReferralCents: 500}
	if got := e.PlatformNetCents(); got != 0 {
		t.Errorf("PlatformNetCents = %d, want 0", got)
	}
}

func TestBillingRun_Fields(t *testing.T) {
	typ := reflect.TypeOf(BillingRun{})

	assertGormTag(t, typ, "DriverID", "uniqueIndex:uq_billing_runs_driver_week")
	assertGormTag(t, typ, "WeekEnding", "uniqueIndex:uq_billing_runs_driver_week")
	assertGormTag(t, typ, "Status", "default:pending")
}

func TestInvoice_Fields(t *testing.T) {
	typ := reflect.TypeOf(Invoice{})

	assertGormTag(t, typ, "NegotiationID", "uniqueIndex")
	assertFieldType(t, typ, "BilledWeek", "*time.Time")
	assertFieldType(t, typ, "PaidAt", "*time.Time")
}

func TestBillingRunItem_UniqueInvoice(t *testing.T) {
	typ := reflect.TypeOf(BillingRunItem{})
	assertGormTag(t, typ, "InvoiceID", "uniqueIndex")
}

func TestDriver_Fields(t *testing.T) {
	typ := reflect.TypeOf(Driver{})

	assertGormTag(t, typ, "Email", "uniqueIndex")
	assertGormTag(t, typ, "BillingState", "default:active")
	assertFieldType(t, typ, "ReferredByID", "*uint")
}
