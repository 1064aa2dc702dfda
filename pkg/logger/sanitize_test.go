package logger

import "testing"

func TestMaskIdentifier(t *testing.T) {
	tests := []struct {
		name           string
		identifier     string
		identifierType string
		want           string
	}{
		{"email masked", "alice@example.com", "email", "a****@*******.com"},
		{"ip keeps prefix", "203.0.113.42", "ip", "203.********"},
		{"short value unchanged", "ab12", "user_id", "ab12"},
		{"invalid email", "not-an-email", "email", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskIdentifier(tt.identifier, tt.identifierType); got != tt.want {
				t.Errorf("MaskIdentifier(%q, %q) = %q, want %q", tt.identifier, tt.identifierType, got, tt.want)
			}
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	if !SanitizeQueryString("identifier=alice%40example.com") {
		t.Error("query strings carrying identifiers should be redacted")
	}
	if !SanitizeQueryString("token=abc123") {
		t.Error("query strings carrying tokens should be redacted")
	}
	if SanitizeQueryString("limit=50&offset=0") {
		t.Error("pagination parameters should not trigger redaction")
	}
}
