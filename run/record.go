package run

import (
	"context"
	"fmt"

	"github.com/linanwx/leadbridge/store"
)

// StoreRecorder writes conversation starts to the conversations table.
type StoreRecorder struct {
	records store.RecordStore
}

var _ ConversationRecorder = (*StoreRecorder)(nil)

// NewStoreRecorder returns a recorder backed by rs.
func NewStoreRecorder(rs store.RecordStore) *StoreRecorder {
	return &StoreRecorder{records: rs}
}

// RecordConversation implements ConversationRecorder.
func (r *StoreRecorder) RecordConversation(ctx context.Context, c Conversation) error {
	_, err := r.records.InsertMany(ctx, store.TableConversations, []store.Record{{
		"thread_id":   c.ThreadID,
		"employee_id": c.EmployeeID,
		"run_id":      c.RunID,
		"created_at":  c.StartedAt,
	}})
	return err
}

// LoadBindings reads every recorded thread owner. When a thread appears
// with more than one employee the earliest record wins.
func LoadBindings(ctx context.Context, rs store.RecordStore) (map[string]string, error) {
	recs, _, err := rs.SelectFiltered(ctx, store.TableConversations, nil, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	bindings := make(map[string]string, len(recs))
	// Records come back newest first.
	for i := len(recs) - 1; i >= 0; i-- {
		threadID, _ := recs[i]["thread_id"].(string)
		employeeID, _ := recs[i]["employee_id"].(string)
		if threadID == "" || employeeID == "" {
			continue
		}
		if _, ok := bindings[threadID]; !ok {
			bindings[threadID] = employeeID
		}
	}
	return bindings, nil
}
