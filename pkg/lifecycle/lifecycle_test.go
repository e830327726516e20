package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

func TestAppointmentTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		action  Action
		want    Status
		wantErr errors.ErrorCode
	}{
		{"confirm pending", StatusPending, ActionConfirm, StatusConfirmed, 0},
		{"complete confirmed", StatusConfirmed, ActionComplete, StatusCompleted, 0},
		{"cancel pending", StatusPending, ActionCancel, StatusCancelled, 0},
		{"cancel confirmed", StatusConfirmed, ActionCancel, StatusCancelled, 0},
		{"complete pending", StatusPending, ActionComplete, StatusPending, errors.ErrState},
		{"confirm confirmed", StatusConfirmed, ActionConfirm, StatusConfirmed, errors.ErrState},
		{"confirm cancelled", StatusCancelled, ActionConfirm, StatusCancelled, errors.ErrState},
		{"cancel completed", StatusCompleted, ActionCancel, StatusCompleted, errors.ErrState},
		{"cancel cancelled", StatusCancelled, ActionCancel, StatusCancelled, errors.ErrState},
		{"scheduled is not an appointment status", StatusScheduled, ActionConfirm, StatusScheduled, errors.ErrState},
		{"unknown action", StatusPending, Action("archive"), StatusPending, errors.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Appointment.Transition(tt.from, tt.action)
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatesNeverChange(t *testing.T) {
	for _, flow := range []*Flow{Appointment, Shift, Approval} {
		for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
			for _, a := range []Action{ActionConfirm, ActionComplete, ActionCancel, ActionApprove, ActionDecline} {
				got, err := flow.Transition(terminal, a)
				assert.Error(t, err, "%s %s %s", flow.Name(), terminal, a)
				assert.Equal(t, terminal, got)
			}
			assert.Empty(t, flow.Allowed(terminal))
		}
	}
}

func TestShiftFlowStartsScheduled(t *testing.T) {
	assert.Equal(t, StatusScheduled, Shift.Initial())

	got, err := Shift.Transition(StatusScheduled, ActionConfirm)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got)

	assert.Equal(t, []Action{ActionConfirm, ActionCancel}, Shift.Allowed(StatusScheduled))
	assert.Equal(t, []Action{ActionComplete, ActionCancel}, Shift.Allowed(StatusConfirmed))
}

func TestApprovalAliasesAndLabels(t *testing.T) {
	got, err := Approval.Transition(StatusPending, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got)
	assert.Equal(t, "approved", Approval.Label(got))

	got, err = Approval.Transition(StatusPending, ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, "declined", Approval.Label(got))

	status, err := Approval.ParseStatus("Approved")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, status)
}

func TestActionFor(t *testing.T) {
	a, err := Appointment.ActionFor(StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, ActionComplete, a)

	_, err = Appointment.ActionFor(StatusPending)
	assert.True(t, errors.Is(err, errors.ErrState))

	_, err = Appointment.ActionFor(Status("archived"))
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}

func TestActiveStatuses(t *testing.T) {
	for _, s := range ActiveStatuses() {
		assert.True(t, IsActive(s))
		assert.False(t, IsTerminal(s))
	}
	assert.False(t, IsActive(StatusCancelled))
	assert.False(t, IsActive(StatusCompleted))
}
