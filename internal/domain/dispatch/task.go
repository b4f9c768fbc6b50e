package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeDispatch is the asynq task type for running a dispatch.
const TaskTypeDispatch = "dispatch:run"

// DispatchPayload is the serialized payload for a dispatch task.
type DispatchPayload struct {
	// Request is the encoded worker request, including its secret.
	Request string `json:"request"`
}

// NewDispatchTask creates a new asynq task for an encoded worker request.
func NewDispatchTask(query string) (*asynq.Task, error) {
	payload, err := json.Marshal(DispatchPayload{Request: query})
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDispatch, payload), nil
}

// ParseDispatchPayload deserializes the task payload.
func ParseDispatchPayload(data []byte) (*DispatchPayload, error) {
	var p DispatchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &p, nil
}
