package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/statusnotify/internal/issue"
)

type stubNotifier struct {
	outcome Outcome
	err     error
	calls   int
}

func (s *stubNotifier) Notify(context.Context, issue.Issue) (Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

type fakeLabelAPI struct {
	lookupErr error
	addErr    error
	added     map[string][]string
}

func (f *fakeLabelAPI) LabelID(_ context.Context, repository, name string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return "LA_" + name, nil
}

func (f *fakeLabelAPI) AddLabels(_ context.Context, labelableID string, labelIDs ...string) error {
	if f.addErr != nil {
		return f.addErr
	}
	if f.added == nil {
		f.added = map[string][]string{}
	}
	f.added[labelableID] = append(f.added[labelableID], labelIDs...)
	return nil
}

func TestNewLabelGuard_EmptyLabel(t *testing.T) {
	inner := &stubNotifier{}
	assert.Same(t, inner, NewLabelGuard(inner, &fakeLabelAPI{}, "", nil))
}

func TestLabelGuard(t *testing.T) {
	labelled := testIssue()
	labelled.Labels = []string{"QA-Notified"}

	tests := []struct {
		name      string
		iss       issue.Issue
		inner     *stubNotifier
		api       *fakeLabelAPI
		want      Outcome
		wantErr   bool
		wantCalls int
		wantLabel bool
	}{
		{name: "sent then labelled", iss: testIssue(), inner: &stubNotifier{outcome: Sent}, api: &fakeLabelAPI{}, want: Sent, wantCalls: 1, wantLabel: true},
		{name: "already labelled", iss: labelled, inner: &stubNotifier{outcome: Sent}, api: &fakeLabelAPI{}, want: SkippedLabeled},
		{name: "dry run is not labelled", iss: testIssue(), inner: &stubNotifier{outcome: DryRun}, api: &fakeLabelAPI{}, want: DryRun, wantCalls: 1},
		{name: "duplicate is not labelled", iss: testIssue(), inner: &stubNotifier{outcome: SkippedDuplicate}, api: &fakeLabelAPI{}, want: SkippedDuplicate, wantCalls: 1},
		{name: "delivery error", iss: testIssue(), inner: &stubNotifier{err: errors.New("boom")}, api: &fakeLabelAPI{}, wantErr: true, wantCalls: 1},
		{name: "lookup error keeps delivery", iss: testIssue(), inner: &stubNotifier{outcome: Sent}, api: &fakeLabelAPI{lookupErr: errors.New("label not found")}, want: Sent, wantCalls: 1},
		{name: "add error keeps delivery", iss: testIssue(), inner: &stubNotifier{outcome: Sent}, api: &fakeLabelAPI{addErr: errors.New("forbidden")}, want: Sent, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLabelGuard(tt.inner, tt.api, "qa-notified", nil)
			got, err := g.Notify(context.Background(), tt.iss)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.wantCalls, tt.inner.calls)
			if tt.wantLabel {
				assert.Equal(t, []string{"LA_qa-notified"}, tt.api.added["I_4"])
			} else {
				assert.Empty(t, tt.api.added)
			}
		})
	}
}
