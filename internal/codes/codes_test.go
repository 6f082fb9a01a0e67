package codes

import "testing"

func TestClass(t *testing.T) {
	cases := []struct {
		code Code
		want Class
	}{
		{Authenticated, ClassSuccess},
		{Wait, ClassIntermediary},
		{FileNotFound, ClassClientError},
		{DatabaseFailure, ClassServerError},
		{Code("bogus"), ClassUnknown},
	}

	for _, tc := range cases {
		if got := tc.code.Class(); got != tc.want {
			t.Errorf("Code(%q).Class() = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestProtocolErrorUnwrap(t *testing.T) {
	err := New(FileNotFound, "no such path")
	if err.Error() != "2:nf: no such path" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Unwrap() != FileNotFound {
		t.Errorf("Unwrap() = %v, want FileNotFound", err.Unwrap())
	}
}

func TestPartialPayload(t *testing.T) {
	err := NewPartial(PartialRead, "stalled", []byte("chunk"))
	if string(err.Partial) != "chunk" {
		t.Errorf("Partial = %q", err.Partial)
	}
	if !err.Code.IsIntermediary() {
		t.Errorf("expected intermediary code")
	}
}
