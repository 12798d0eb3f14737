package taskname

// Asynq task types shared between producers and the worker.
const (
	EligibilityReconcile = "eligibility:reconcile"
)

// ReconcilePayload asks the worker to re-derive the hasCredits flag on every
// website owned by the user from their authoritative balance.
type ReconcilePayload struct {
	UserID  string `json:"user_id"`
	TraceID string `json:"trace_id,omitempty"`
}
