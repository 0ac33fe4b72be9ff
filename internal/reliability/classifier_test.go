package reliability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"wrapped permission", fmt.Errorf("open mic: %w", ErrPermission), KindPermission},
		{"wrapped entitlement", fmt.Errorf("video: %w", ErrEntitlement), KindEntitlement},
		{"invalid", fmt.Errorf("options: %w", ErrInvalidRequest), KindInvalidRequest},
		{"stream", fmt.Errorf("receive: %w", ErrStreamFault), KindStreamFault},
		{"deadline", fmt.Errorf("chat: %w", context.DeadlineExceeded), KindTransient},
		{"upstream entitlement text", errors.New("Error 404, Message: Requested entity was not found., Status: NOT_FOUND"), KindEntitlement},
		{"upstream permission text", errors.New("Error 403, Status: PERMISSION_DENIED"), KindPermission},
		{"upstream invalid text", errors.New("Error 400, Status: INVALID_ARGUMENT"), KindInvalidRequest},
		{"unknown", errors.New("connection reset by peer"), KindTransient},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsEntitlement(t *testing.T) {
	if !IsEntitlement(errors.New("rpc: Requested entity was not found.")) {
		t.Fatalf("IsEntitlement() = false for upstream not-found message")
	}
	if IsEntitlement(errors.New("quota exceeded")) {
		t.Fatalf("IsEntitlement() = true for quota message")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsTransientHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsTransientHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestKindFromHTTPStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusOK:                  KindNone,
		http.StatusForbidden:           KindPermission,
		http.StatusNotFound:            KindEntitlement,
		http.StatusTooManyRequests:     KindTransient,
		http.StatusUnprocessableEntity: KindInvalidRequest,
	}
	for code, want := range cases {
		if got := KindFromHTTPStatus(code); got != want {
			t.Fatalf("KindFromHTTPStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(KindEntitlement); got != http.StatusPaymentRequired {
		t.Fatalf("HTTPStatus(entitlement) = %d", got)
	}
	if got := HTTPStatus(KindInvalidRequest); got != http.StatusBadRequest {
		t.Fatalf("HTTPStatus(invalid) = %d", got)
	}
	if got := HTTPStatus(KindTransient); got != http.StatusServiceUnavailable {
		t.Fatalf("HTTPStatus(transient) = %d", got)
	}
}
