package constants

// JobStatus is the canonical status for rows in transcripts.
type JobStatus string

// Stable values (store these exact strings in DB). They match the provider's vocabulary.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// AllJobStatuses lists statuses in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusError,
}

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	for _, v := range AllJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// rank orders non-terminal statuses so regressions can be detected.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusError:
		return 2
	default:
		return -1
	}
}

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s JobStatus) Before(other JobStatus) bool {
	return s.rank() < other.rank()
}
