package server

import (
	"net/http"
)

type blockSpec struct {
	Type           string         `json:"type"`
	Kind           string         `json:"kind"`
	ToolCompatible bool           `json:"tool_compatible"`
	Extras         map[string]any `json:"extras,omitempty"`
}

// ListBlocksAPI handles GET /api/blocks and /api/block-specs — the
// registry catalog the editor's node palette reads.
func (s *Server) ListBlocksAPI(w http.ResponseWriter, r *http.Request) {
	types := s.registry.Types()

	specs := make([]blockSpec, 0, len(types))
	for _, t := range types {
		b, err := s.registry.Build(t, nil)
		if err != nil {
			continue
		}
		specs = append(specs, blockSpec{
			Type:           t,
			Kind:           string(b.Kind()),
			ToolCompatible: b.ToolCompatible(),
			Extras:         b.Extras(),
		})
	}

	httpResponseJSON(w, map[string]any{"blocks": specs}, http.StatusOK)
}
