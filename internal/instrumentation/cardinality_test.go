package instrumentation

import "testing"

func TestExtractUserDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"user@gmail.com", "gmail.com"},
		{"admin@company.org", "company.org"},
		{"test@subdomain.example.com", "subdomain.example.com"},
		{"invalid", "unknown"},
		{"", "unknown"},
		{"@", "unknown"},
		{"user@", "unknown"},
		{"@domain.com", "domain.com"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := ExtractUserDomain(tt.email)
			if result != tt.expected {
				t.Errorf("ExtractUserDomain(%q) = %q, want %q", tt.email, result, tt.expected)
			}
		})
	}
}

func TestToolStatusConstants(t *testing.T) {
	statuses := map[string]string{
		ToolStatusSuccess:   "success",
		ToolStatusError:     "error",
		ToolStatusTimeout:   "timeout",
		ToolStatusRejected:  "rejected",
		ToolStatusTruncated: "truncated",
		ToolStatusUnknown:   "unknown_tool",
	}

	for constant, expected := range statuses {
		if constant != expected {
			t.Errorf("Tool status constant = %q, want %q", constant, expected)
		}
	}
}
