package health

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/dramascope/internal/taskclient"
)

// TaskClientCheckName is the name of the task client check.
const TaskClientCheckName = "task-client"

// TaskClientChecker sends a minimal generation request.
type TaskClientChecker struct {
	client taskclient.Client
	model  string
}

// NewTaskClientChecker creates a checker that calls client with the flash model.
func NewTaskClientChecker(client taskclient.Client) *TaskClientChecker {
	return &TaskClientChecker{client: client, model: taskclient.ModelFlash}
}

// Name returns the name of this health check.
func (c *TaskClientChecker) Name() string {
	return TaskClientCheckName
}

// Check is Unhealthy when the client is missing or the call fails; the
// error text is part of the message. The request always reaches the service.
func (c *TaskClientChecker) Check(ctx context.Context) *Result {
	if c.client == nil {
		return Unhealthy("task client error: no client configured")
	}

	resp, err := c.client.Generate(ctx, taskclient.Request{
		Prompt:      "test",
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   10,
		NoCache:     true,
	})
	if err != nil {
		return Unhealthy(fmt.Sprintf("task client error: %v", err)).
			WithDetail("model", c.model).
			WithDetail("error", err.Error())
	}

	return Healthy("task client responded").
		WithDetail("model", c.model).
		WithDetail("response_model", resp.Model)
}
