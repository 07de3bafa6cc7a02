package server

import (
	"time"
)

// ExecutionUpdateMessage is pushed to WebSocket clients whenever an
// execution changes: items toggled, runs started, finished, reopened
// or deleted.
type ExecutionUpdateMessage struct {
	Type        string `json:"type"`
	ExecutionID string `json:"execution_id"`
	Total       int    `json:"total"`
	Finished    int    `json:"finished"`
	Complete    bool   `json:"complete"`
	Timestamp   int64  `json:"timestamp"`
}

// broadcastMessage sends a message to all clients subscribed to the
// execution (or to everything). Returns the number of clients that
// accepted the message.
func (s *Server) broadcastMessage(executionID string, msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		if client.executionID == "" || client.executionID == executionID {
			clients = append(clients, client)
		}
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

// broadcastExecutionUpdate pushes the execution's current completion state
// to interested clients
func (s *Server) broadcastExecutionUpdate(executionID, event string) {
	msg := ExecutionUpdateMessage{
		Type:        event,
		ExecutionID: executionID,
		Timestamp:   time.Now().Unix(),
	}

	// Deleted executions have no status left to report.
	if event != "execution_deleted" {
		status, err := s.execs.Status(executionID)
		if err != nil {
			s.logger.Debugw("Failed to get execution status for broadcast",
				"execution_id", executionID,
				"error", err,
			)
			return
		}
		msg.Total = status.Total
		msg.Finished = status.Finished
		msg.Complete = status.Complete()
	}

	sent := s.broadcastMessage(executionID, msg)
	s.logger.Debugw("Broadcasted execution update",
		"event", event,
		"execution_id", shortID(executionID),
		"clients", sent,
	)
}
