package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/apperr"
)

func TestLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set := f.approved(t, "Q1-2025")

	task, err := f.svc.Link(ctx, pm, set.ID, LinkInput{
		TargetType:    TargetTask,
		TargetID:      "TASK-42",
		Title:         "Migrate billing",
		Contributions: []Contribution{{KPIIndex: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "e-pm", task.CreatedBy)
	f.now = f.now.Add(time.Minute)

	_, err = f.svc.Link(ctx, hr, set.ID, LinkInput{
		TargetType:    TargetMilestone,
		TargetID:      "M-1",
		Contributions: []Contribution{{KPIIndex: 0, Weight: 60}, {KPIIndex: 1, Weight: 40}},
	})
	require.NoError(t, err)

	links, err := f.svc.ListLinks(ctx, employee, set.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "TASK-42", links[0].TargetID)
	assert.Equal(t, []Contribution{{KPIIndex: 0, Weight: 60}, {KPIIndex: 1, Weight: 40}}, links[1].Contributions)

	_, err = f.svc.ListLinks(ctx, colleague, set.ID)
	require.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestLinkRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set := f.approved(t, "Q1-2025")

	cases := []struct {
		name  string
		in    LinkInput
		field string
	}{
		{"milestone needs weights", LinkInput{TargetType: TargetMilestone, TargetID: "M-1", Contributions: []Contribution{{KPIIndex: 0}}}, "contributions.weight[0]"},
		{"weights add up", LinkInput{TargetType: TargetMilestone, TargetID: "M-1", Contributions: []Contribution{{KPIIndex: 0, Weight: 50}, {KPIIndex: 1, Weight: 30}}}, "contributions.weight"},
		{"weighted task adds up", LinkInput{TargetType: TargetTask, TargetID: "T-1", Contributions: []Contribution{{KPIIndex: 0, Weight: 70}}}, "contributions.weight"},
		{"index in range", LinkInput{TargetType: TargetTask, TargetID: "T-1", Contributions: []Contribution{{KPIIndex: 7}}}, "contributions[0].kpiIndex"},
		{"index unique", LinkInput{TargetType: TargetTask, TargetID: "T-1", Contributions: []Contribution{{KPIIndex: 1, Weight: 50}, {KPIIndex: 1, Weight: 50}}}, "contributions[1].kpiIndex"},
		{"target type", LinkInput{TargetType: "epic", TargetID: "E-1", Contributions: []Contribution{{KPIIndex: 0}}}, "targetType"},
		{"target id", LinkInput{TargetType: TargetTask, Contributions: []Contribution{{KPIIndex: 0}}}, "targetId"},
		{"contributions", LinkInput{TargetType: TargetTask, TargetID: "T-1"}, "contributions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Link(ctx, pm, set.ID, tc.in)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Issues[0].Field)
		})
	}

	t.Run("employees cannot link", func(t *testing.T) {
		_, err := f.svc.Link(ctx, employee, set.ID, LinkInput{TargetType: TargetTask, TargetID: "T-1", Contributions: []Contribution{{KPIIndex: 0}}})
		require.ErrorIs(t, err, apperr.ErrAuthorization)
	})

	t.Run("set must be approved", func(t *testing.T) {
		pending := f.submitted(t, colleague, "Q1-2025")
		_, err := f.svc.Link(ctx, pm, pending.ID, LinkInput{TargetType: TargetTask, TargetID: "T-1", Contributions: []Contribution{{KPIIndex: 0}}})
		require.ErrorIs(t, err, apperr.ErrInvalidState)
	})

	links, err := f.svc.ListLinks(ctx, pm, set.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestParseQuarter(t *testing.T) {
	q, err := ParseQuarter(" q4-2026 ")
	require.NoError(t, err)
	assert.Equal(t, Quarter{Number: 4, Year: 2026}, q)
	assert.Equal(t, "Q4-2026", q.String())

	for _, bad := range []string{"", "Q5-2025", "Q1-25", "Q1 2025", "2025-Q1"} {
		_, err := ParseQuarter(bad)
		assert.Error(t, err, bad)
	}
}
