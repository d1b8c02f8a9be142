package job

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Transition describes an allowed status change.
type Transition struct {
	From Status
	To   Status
}

var validTransitions = []Transition{
	{From: StatusQueued, To: StatusRunning},
	{From: StatusRunning, To: StatusSucceeded},
	{From: StatusRunning, To: StatusFailed},
	{From: StatusRunning, To: StatusDead},
	{From: StatusRunning, To: StatusQueued}, // claim released on shutdown
	{From: StatusFailed, To: StatusQueued},  // redrive
	{From: StatusDead, To: StatusQueued},    // redrive
}

// ValidTransition reports whether moving from one status to another is allowed.
func ValidTransition(from, to Status) bool {
	for _, t := range validTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
