package hub

import (
	"context"

	"github.com/google/uuid"

	"beadboard/internal/bd"
	"beadboard/internal/logger"
)

// Refresh re-reads the canonical list for project and pushes one snapshot
// envelope to every live connection bound to it. A failed refresh is
// dropped without surfacing anything to clients: a transient bd hiccup
// must not cancel the mutation reply that triggered it, and the next
// successful mutation pushes a fresh snapshot anyway.
func (s *Server) Refresh(projectDir string) {
	conns := s.registry.ByProject(projectDir)
	if len(conns) == 0 {
		return
	}

	ctx := context.Background()
	var items []bd.Issue
	if err := s.gateway.InvokeJSON(ctx, projectDir, &items, "list", "--json"); err != nil {
		logger.Debug("broadcast refresh dropped", "project", projectDir, "error", err)
		return
	}
	if items == nil {
		items = []bd.Issue{}
	}

	push := Reply{
		ID:   BroadcastID,
		Type: TypeSnapshot,
		OK:   true,
		Payload: SnapshotPayload{
			ID:    uuid.New().String(),
			Type:  TypeSnapshot,
			Items: items,
		},
	}
	for _, c := range conns {
		if err := c.send(ctx, push); err != nil {
			logger.Debug("snapshot push failed", "conn", c.ID, "error", err)
		}
	}
	logger.Debug("snapshot pushed", "project", projectDir, "conns", len(conns), "items", len(items))
}
