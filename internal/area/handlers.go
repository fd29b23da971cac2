package area

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/munchies-pricing/internal/common"
)

// Handler serves the delivery area picker.
type Handler struct {
	Source Source
	Logger zerolog.Logger
}

type areaOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// List handles GET /api/v1/areas.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Source == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AREAS_UNAVAILABLE", "delivery areas unavailable", nil)
		return
	}
	areas, err := h.Source.List(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("area_list_failed")
		common.JSONError(w, http.StatusServiceUnavailable, "AREAS_UNAVAILABLE", "delivery areas unavailable", nil)
		return
	}
	out := make([]areaOption, 0, len(areas))
	for _, a := range areas {
		out = append(out, areaOption{ID: a.ID, Name: a.Name, Slug: a.Slug})
	}
	common.Data(w, http.StatusOK, out)
}
