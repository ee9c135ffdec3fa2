package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(caller ServiceCaller, publisher EventPublisher, logger Logger) *RuleContext {
	return NewRuleContext(fraudFacts(), Collaborators{
		Services: caller,
		Events:   publisher,
		Logger:   logger,
	})
}

func TestResponseKey(t *testing.T) {
	assert.Equal(t, "_fraud-detection_response", ResponseKey("/fraud-detection"))
	assert.Equal(t, "_api_v1_score_response", ResponseKey("/api/v1/score"))
	assert.Equal(t, "scoring_response", ResponseKey("scoring"))
}

// TestLogActionHasNoOutputEffect verifies Log only reaches the logger
func TestLogActionHasNoOutputEffect(t *testing.T) {
	logger := &recordingLogger{}
	rc := newTestContext(nil, nil, logger)

	err := ExecuteAction(context.Background(), Log{Message: "high risk transaction detected"}, rc)
	require.NoError(t, err)

	assert.Equal(t, []string{"high risk transaction detected"}, logger.Messages())
	assert.Empty(t, rc.Outputs)
}

// TestUpdateFieldLastWriteWins verifies UpdateField overwrites without merging
func TestUpdateFieldLastWriteWins(t *testing.T) {
	rc := newTestContext(nil, nil, &recordingLogger{})
	ctx := context.Background()

	require.NoError(t, ExecuteAction(ctx, UpdateField{Field: "discount", Value: Float(0.10)}, rc))
	require.NoError(t, ExecuteAction(ctx, UpdateField{Field: "discount", Value: Map{"pct": Int(15)}}, rc))

	assert.True(t, Equal(Map{"discount": Map{"pct": Int(15)}}, rc.Outputs))
}

// TestCallExternalServiceRecordsMarker verifies a successful call records the derived response key
func TestCallExternalServiceRecordsMarker(t *testing.T) {
	caller := &recordingCaller{}
	logger := &recordingLogger{}
	rc := newTestContext(caller, nil, logger)

	action := CallExternalService{
		Endpoint: "/fraud-detection",
		Payload:  map[string]Value{"transaction_id": String("txn12345"), "amount": Int(15000)},
	}
	require.NoError(t, ExecuteAction(context.Background(), action, rc))

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "/fraud-detection", caller.calls[0].Endpoint)
	assert.True(t, Equal(Map(action.Payload), Map(caller.calls[0].Payload)))
	assert.Equal(t, ServiceSuccessMarker, rc.Outputs["_fraud-detection_response"])
	assert.Contains(t, logger.Messages(), "calling external service: /fraud-detection")
}

// TestCallExternalServiceFailure verifies collaborator failures surface as ActionFailed
func TestCallExternalServiceFailure(t *testing.T) {
	caller := &recordingCaller{fail: map[string]bool{"/down": true}}
	rc := newTestContext(caller, nil, &recordingLogger{})

	err := ExecuteAction(context.Background(), CallExternalService{Endpoint: "/down"}, rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.ErrorIs(t, err, errServiceDown)
	assert.NotContains(t, rc.Outputs, ResponseKey("/down"))
}

// TestDefaultServiceCallerSucceeds verifies the stub collaborator is used when none is set
func TestDefaultServiceCallerSucceeds(t *testing.T) {
	rc := newTestContext(nil, nil, &recordingLogger{})

	require.NoError(t, ExecuteAction(context.Background(), CallExternalService{Endpoint: "/score"}, rc))
	assert.Equal(t, ServiceSuccessMarker, rc.Outputs["_score_response"])
}

// TestSendEvent verifies events are published without touching outputs
func TestSendEvent(t *testing.T) {
	publisher := &recordingPublisher{}
	logger := &recordingLogger{}
	rc := newTestContext(nil, publisher, logger)

	action := SendEvent{
		EventType: "promotion_applied",
		Data:      map[string]Value{"discount": Float(0.15), "rule": String("big discount")},
	}
	require.NoError(t, ExecuteAction(context.Background(), action, rc))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "promotion_applied", publisher.events[0].EventType)
	assert.Empty(t, rc.Outputs)
	assert.Contains(t, logger.Messages(), "sending event: promotion_applied")
}

func TestSendEventFailure(t *testing.T) {
	boom := errors.New("broker unreachable")
	rc := newTestContext(nil, &recordingPublisher{err: boom}, &recordingLogger{})

	err := ExecuteAction(context.Background(), SendEvent{EventType: "alert"}, rc)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.ErrorIs(t, err, boom)
}

// TestCompositeRunsInOrder verifies nested composites run depth first in declared order
func TestCompositeRunsInOrder(t *testing.T) {
	logger := &recordingLogger{}
	rc := newTestContext(nil, nil, logger)

	action := Composite{
		Log{Message: "first"},
		Composite{
			Log{Message: "second"},
			UpdateField{Field: "step", Value: Int(2)},
		},
		Log{Message: "third"},
		UpdateField{Field: "step", Value: Int(3)},
	}
	require.NoError(t, ExecuteAction(context.Background(), action, rc))

	assert.Equal(t, []string{"first", "second", "third"}, logger.Messages())
	assert.Equal(t, Int(3), rc.Outputs["step"])
}

// TestCompositeFailFast verifies the first failing child aborts its siblings
// and keeps the effects of the children before it
func TestCompositeFailFast(t *testing.T) {
	caller := &recordingCaller{fail: map[string]bool{"/down": true}}
	rc := newTestContext(caller, nil, &recordingLogger{})

	action := Composite{
		UpdateField{Field: "before", Value: Bool(true)},
		CallExternalService{Endpoint: "/down"},
		UpdateField{Field: "after", Value: Bool(true)},
	}

	err := ExecuteAction(context.Background(), action, rc)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.Equal(t, Bool(true), rc.Outputs["before"])
	assert.NotContains(t, rc.Outputs, "after")
}

func TestExecuteNilAction(t *testing.T) {
	rc := newTestContext(nil, nil, &recordingLogger{})
	err := ExecuteAction(context.Background(), nil, rc)
	assert.ErrorIs(t, err, ErrActionFailed)
}

// TestNewRuleContextSnapshotsFacts verifies the context owns its own copy of facts
func TestNewRuleContextSnapshotsFacts(t *testing.T) {
	facts := map[string]Value{"tags": List{String("a")}}
	rc := NewRuleContext(facts, Collaborators{})

	facts["tags"].(List)[0] = String("mutated")
	facts["extra"] = Int(1)

	assert.True(t, Equal(Map{"tags": List{String("a")}}, rc.Facts))
	assert.NotNil(t, rc.Outputs)
	assert.NotNil(t, rc.Collaborators.Services)
	assert.NotNil(t, rc.Collaborators.Events)
	assert.NotNil(t, rc.Collaborators.Logger)
}
