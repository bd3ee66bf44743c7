package notify

import (
	"context"
	"fmt"

	"admintask/internal/core"
)

// TaskName is the registry name of the notification task.
const TaskName = "notify.bark"

// Params is the validated parameter object for the notification task.
type Params struct {
	Title string
	Body  string
}

// sendTask delivers one notification through the configured notifier. A
// delivery error is an expected, business-level failure and reports through
// the boolean channel, not as a fault.
type sendTask struct {
	notifier Notifier
}

// RegisterTask adds the notification task to the registry, backed by the
// given notifier.
func RegisterTask(registry *core.Registry, notifier Notifier) {
	core.RegisterWithParams(registry, TaskName,
		func(params any) string {
			if m, ok := params.(map[string]any); ok {
				if title, ok := m["title"].(string); ok {
					return fmt.Sprintf("send notification %q", title)
				}
			}
			return "send notification"
		},
		func() core.TaskWithParams[Params] {
			return sendTask{notifier: notifier}
		})
}

func (t sendTask) Validate(raw any) (Params, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Params{}, fmt.Errorf("expected an object, got %T", raw)
	}
	title, ok := m["title"].(string)
	if !ok || title == "" {
		return Params{}, fmt.Errorf("title is required")
	}
	body, _ := m["body"].(string)
	return Params{Title: title, Body: body}, nil
}

func (t sendTask) Execute(ctx context.Context, tc *core.TaskContext, params Params) (bool, error) {
	if err := t.notifier.Send(ctx, params.Title, params.Body); err != nil {
		tc.Error("notification delivery failed", err.Error())
		return false, nil
	}
	tc.Info("notification delivered", params.Title)
	return true, nil
}
