package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/api"
	"github.com/cloo-solutions/tutorfit/internal/logging"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

type ScoreRecomputer interface {
	RecomputeCompositeScores(ctx context.Context, weights *scoring.Weights) (*service.RecomputeResult, error)
}

// SnapshotLinker presigns snapshot keys for download.
type SnapshotLinker interface {
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

type AdminHandler struct {
	svc    ScoreRecomputer
	linker SnapshotLinker
}

// NewAdminHandler creates the admin handler. linker may be nil when no
// object store is configured.
func NewAdminHandler(svc ScoreRecomputer, linker SnapshotLinker) *AdminHandler {
	return &AdminHandler{svc: svc, linker: linker}
}

type RecomputeRequest struct {
	Weights *scoring.Weights `json:"weights"`
}

type RecomputeResponse struct {
	Updated     int    `json:"updated"`
	SnapshotKey string `json:"snapshot_key,omitempty"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

func (h *AdminHandler) RecomputeScores(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if !api.DecodeJSON(w, r, &req, true) {
		return
	}

	result, err := h.svc.RecomputeCompositeScores(r.Context(), req.Weights)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &RecomputeResponse{Updated: result.Updated, SnapshotKey: result.SnapshotKey}
	if h.linker != nil && result.SnapshotKey != "" {
		url, err := h.linker.GenerateDownloadURL(r.Context(), result.SnapshotKey)
		if err != nil {
			logging.FromContext(r.Context(), nil).Warn("failed to presign snapshot",
				zap.String("key", result.SnapshotKey), zap.Error(err))
		} else {
			resp.SnapshotURL = url
		}
	}

	api.Success(w, http.StatusOK, resp)
}
