package domain

// SubmissionReport describes a finished submission attempt for audit and
// archival.
type SubmissionReport struct {
	SessionID    string
	Actor        string
	RequestID    string
	Request      DeploymentRequest
	DeploymentID string
	AutoIncluded []AutoIncludedComponent
	Outcome      string
	Error        string
}
