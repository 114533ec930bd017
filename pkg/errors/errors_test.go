package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeSignatureInvalid, status: http.StatusBadRequest, publicMsg: "signature verification failed"},
		{code: CodeMalformedEvent, status: http.StatusBadRequest, publicMsg: "malformed event", detailsOK: true},
		{code: CodePaymentProvider, status: http.StatusBadGateway, publicMsg: "payment provider error", detailsOK: true},
		{code: CodeStorage, status: http.StatusInternalServerError, publicMsg: "storage unavailable", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStorage, cause, "insert purchase")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeStorage {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "no entry"))
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeForbidden) {
		t.Fatalf("expected IsCode to match forbidden")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("expected IsCode to reject not found")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCapturesPgFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_purchases_checkout_session_id", TableName: "purchases"}
	err := Wrap(CodeStorage, pgErr, "insert purchase")

	dump := Dump(err)
	if dump.Code != CodeStorage {
		t.Fatalf("expected storage code, got %s", dump.Code)
	}
	if dump.PG == nil || dump.PG.Code != "23505" || dump.PG.Constraint != "ux_purchases_checkout_session_id" {
		t.Fatalf("unexpected pg fields %+v", dump.PG)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
}

func TestDumpFields(t *testing.T) {
	fields := Dump(stdErrors.New("plain")).Fields()
	if fields["error"] != "plain" {
		t.Fatalf("unexpected error field %v", fields["error"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("pg fields should be absent for non-postgres errors")
	}
	if _, ok := fields["error_code"]; ok {
		t.Fatalf("error_code should be absent for untyped errors")
	}

	pgFields := Dump(Wrap(CodeStorage, &pgconn.PgError{Code: "40001"}, "update purchase")).Fields()
	if pgFields["pg_code"] != "40001" || pgFields["error_code"] != CodeStorage {
		t.Fatalf("unexpected fields %+v", pgFields)
	}
}

func TestPublicMessage(t *testing.T) {
	if got := New(CodeNotFound, "purchase not found").PublicMessage(); got != "purchase not found" {
		t.Fatalf("exposed code should keep its message, got %q", got)
	}
	if got := New(CodeNotFound, "").PublicMessage(); got != "resource not found" {
		t.Fatalf("empty message should fall back, got %q", got)
	}
	if got := New(CodePaymentProvider, "card_declined: sk_live...").PublicMessage(); got != "payment provider error" {
		t.Fatalf("hidden code leaked its message: %q", got)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeStorage, stdErrors.New("conn reset"), "insert purchase")
	if err.Error() != "STORAGE_ERROR: insert purchase: conn reset" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if Newf(CodeValidation, "bad %s", "id").Error() != "VALIDATION_ERROR: bad id" {
		t.Fatalf("unexpected Newf output")
	}
}

func TestCoerce(t *testing.T) {
	if Coerce(nil).Code() != CodeInternal {
		t.Fatalf("nil should coerce to internal")
	}
	typed := New(CodeConflict, "dup")
	if Coerce(fmt.Errorf("wrapped: %w", typed)) != typed {
		t.Fatalf("Coerce should return the typed error in the chain")
	}
	cause := stdErrors.New("raw")
	if got := Coerce(cause); got.Code() != CodeInternal || !stdErrors.Is(got, cause) {
		t.Fatalf("untyped error should wrap as internal")
	}
}
