// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// AnalysisTask asks the pipeline to analyze one journal entry.
type AnalysisTask struct {
	EntryID string `json:"entry_id"`
	UserID  string `json:"user_id"`
}
