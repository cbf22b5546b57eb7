package constants

// CobrancaStatus is the canonical payment status stored on a cobrança.
type CobrancaStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending   CobrancaStatus = "pending"
	StatusApproved  CobrancaStatus = "approved"
	StatusRejected  CobrancaStatus = "rejected"
	StatusCancelled CobrancaStatus = "cancelled"
	StatusInProcess CobrancaStatus = "in_process"
)

var allStatuses = []CobrancaStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusCancelled,
	StatusInProcess,
}

// StatusStrings returns the allowed status values, e.g. for enum validation.
func StatusStrings() []string {
	result := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		result[i] = string(s)
	}
	return result
}

// IsValidStatus reports whether s is one of the known statuses.
func IsValidStatus(s string) bool {
	for _, st := range allStatuses {
		if string(st) == s {
			return true
		}
	}
	return false
}
