package instrumentation

import "strings"

// ExtractUserDomain returns the domain part of an email address, or
// "unknown" when there is none. Metric labels carry the domain rather
// than the full address so label cardinality stays bounded by the set
// of signed-in organizations.
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Tool invocation status values used as the tool_invocations_total status label.
// Status, Auth, and Exporter constants are defined in config.go.
const (
	ToolStatusSuccess   = "success"
	ToolStatusError     = "error"
	ToolStatusTimeout   = "timeout"
	ToolStatusRejected  = "rejected"
	ToolStatusTruncated = "truncated"
	ToolStatusUnknown   = "unknown_tool"
)
