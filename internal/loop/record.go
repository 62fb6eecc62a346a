// Package loop drives the implement/review iteration cycle for each task and
// sequences tasks through a batch.
package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// IterationRecord is the audit record for one implementer+reviewer round.
type IterationRecord struct {
	// RecordID is the unique identifier for this record.
	RecordID string `json:"record_id"`

	// TaskBase is the task's base name.
	TaskBase string `json:"task_base"`

	// TaskIndex is the task's 1-based position in the batch.
	TaskIndex int `json:"task_index"`

	// Iteration is the 1-based iteration number within the task.
	Iteration int `json:"iteration"`

	// SessionID is the agent session identifier shared by the task.
	SessionID string `json:"session_id"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	ImplPromptPath   string `json:"impl_prompt_path"`
	ImplLogPath      string `json:"impl_log_path"`
	ReviewPromptPath string `json:"review_prompt_path,omitempty"`
	ReviewLogPath    string `json:"review_log_path,omitempty"`

	// ImplGate and ReviewGate are the gate classifications for this round.
	ImplGate   string `json:"impl_gate,omitempty"`
	ReviewGate string `json:"review_gate,omitempty"`

	// Invocation errors are recorded but do not by themselves decide the
	// round; gating is driven by log content.
	ImplInvokeError   string `json:"impl_invoke_error,omitempty"`
	ReviewInvokeError string `json:"review_invoke_error,omitempty"`
}

// NewIterationRecord creates a record for the given task round.
func NewIterationRecord(taskBase string, taskIndex, iteration int, sessionID string) *IterationRecord {
	return &IterationRecord{
		RecordID:  uuid.New().String(),
		TaskBase:  taskBase,
		TaskIndex: taskIndex,
		Iteration: iteration,
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// Complete stamps the record's end time.
func (r *IterationRecord) Complete() {
	r.EndTime = time.Now()
}

// SaveRecord writes the record as JSON into dir and returns the file path.
func SaveRecord(dir string, rec *IterationRecord) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create records dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_iter%d_%s.json", rec.TaskBase, rec.Iteration, rec.RecordID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write record %s: %w", path, err)
	}
	return path, nil
}

// LoadRecord reads a single record file.
func LoadRecord(path string) (*IterationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}
	rec := &IterationRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	return rec, nil
}

// NewRunStamp generates the timestamp that namespaces one task's artifacts.
// Fixed for the task's entire lifetime so repeated runs never collide.
func NewRunStamp() string {
	return time.Now().Format("20060102_150405")
}
