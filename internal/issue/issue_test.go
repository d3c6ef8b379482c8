package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssue_IsOpen(t *testing.T) {
	assert.True(t, Issue{State: StateOpen}.IsOpen())
	assert.True(t, Issue{State: "open"}.IsOpen())
	assert.False(t, Issue{State: StateClosed}.IsOpen())
	assert.False(t, Issue{}.IsOpen())
}

func TestIssue_HasLabel(t *testing.T) {
	i := Issue{Labels: []string{"bug", "QA-Notified"}}
	assert.True(t, i.HasLabel("qa-notified"))
	assert.False(t, i.HasLabel("feature"))
}

func TestIssue_LoginsAndEmails(t *testing.T) {
	i := Issue{Assignees: []Assignee{
		{Login: "alice", Email: "alice@example.com"},
		{Login: "bob"},
		{Email: "ghost@example.com"},
	}}
	assert.Equal(t, []string{"alice", "bob"}, i.Logins())
	assert.Equal(t, []string{"alice@example.com", "ghost@example.com"}, i.Emails())
}

func TestIssue_String(t *testing.T) {
	assert.Equal(t, "acme/api#12", Issue{Repository: "acme/api", Number: 12}.String())
	assert.Equal(t, "#7", Issue{Number: 7}.String())
}

func TestObservation_HasStatus(t *testing.T) {
	assert.True(t, Observation{Status: "QA Testing"}.HasStatus())
	assert.False(t, Observation{}.HasStatus())
}
