package job

import "testing"

func TestValidTransition(t *testing.T) {
	allowed := []Transition{
		{StatusQueued, StatusRunning},
		{StatusRunning, StatusSucceeded},
		{StatusRunning, StatusDead},
		{StatusRunning, StatusQueued},
		{StatusDead, StatusQueued},
	}
	for _, tr := range allowed {
		if !ValidTransition(tr.From, tr.To) {
			t.Errorf("%s -> %s should be allowed", tr.From, tr.To)
		}
	}

	denied := []Transition{
		{StatusQueued, StatusSucceeded},
		{StatusQueued, StatusDead},
		{StatusSucceeded, StatusQueued},
		{StatusSucceeded, StatusRunning},
		{StatusDead, StatusRunning},
	}
	for _, tr := range denied {
		if ValidTransition(tr.From, tr.To) {
			t.Errorf("%s -> %s should be rejected", tr.From, tr.To)
		}
	}
}
