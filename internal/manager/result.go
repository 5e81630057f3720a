// internal/manager/result.go
package manager

// ResultStatus is the normalized outcome of one dispatch.
type ResultStatus string

const (
	StatusSuccess            ResultStatus = "success"
	StatusFailed             ResultStatus = "failed"
	StatusRetriedThenSuccess ResultStatus = "retried_then_succeeded"
	StatusRetriedThenFailed  ResultStatus = "retried_then_failed"
)

// Result is what a dispatch returns to the front end. Raw transport
// errors never escape the manager; they are flattened into ErrorKind
// and ErrorDetail here.
type Result struct {
	CorrelationID string         `json:"correlation_id"`
	TenantID      string         `json:"tenant_id"`
	Operation     string         `json:"operation"`
	Status        ResultStatus   `json:"status"`
	Attempts      int            `json:"attempts"`
	Payload       map[string]any `json:"payload,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	ErrorDetail   string         `json:"error_detail,omitempty"`
}

// Failed reports whether the dispatch ended in a failure status.
func (r Result) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusRetriedThenFailed
}
