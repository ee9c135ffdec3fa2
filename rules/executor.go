package rules

import (
	"context"
	"fmt"
	"strings"
)

// ServiceSuccessMarker is recorded for every successful external service call.
var ServiceSuccessMarker = String("SUCCESS")

// ResponseKey derives the output key recorded for a service call:
// every "/" becomes "_" and "_response" is appended.
func ResponseKey(endpoint string) string {
	return strings.ReplaceAll(endpoint, "/", "_") + "_response"
}

// ExecuteAction applies action to rc. Composite children run in order and the
// first failing child aborts its remaining siblings.
func ExecuteAction(ctx context.Context, action Action, rc *RuleContext) error {
	switch a := action.(type) {
	case Log:
		rc.Collaborators.Logger.Log(a.Message)
		return nil

	case UpdateField:
		rc.Outputs[a.Field] = a.Value
		return nil

	case CallExternalService:
		notice(rc.Collaborators.Logger,
			fmt.Sprintf("calling external service: %s", a.Endpoint),
			"endpoint", a.Endpoint, "payload", Format(Map(a.Payload)))
		if _, err := rc.Collaborators.Services.Call(ctx, a.Endpoint, a.Payload); err != nil {
			return actionFailed(err, "external service %s failed", a.Endpoint)
		}
		rc.Outputs[ResponseKey(a.Endpoint)] = ServiceSuccessMarker
		return nil

	case SendEvent:
		notice(rc.Collaborators.Logger,
			fmt.Sprintf("sending event: %s", a.EventType),
			"event_type", a.EventType, "data", Format(Map(a.Data)))
		if err := rc.Collaborators.Events.Publish(ctx, a.EventType, a.Data); err != nil {
			return actionFailed(err, "publish event %s failed", a.EventType)
		}
		return nil

	case Composite:
		for _, child := range a {
			if err := ExecuteAction(ctx, child, rc); err != nil {
				return err
			}
		}
		return nil

	default:
		return actionFailed(nil, "unsupported action %T", action)
	}
}
