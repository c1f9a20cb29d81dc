package api

import (
	"net/http"

	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/color"
)

// CatalogHandler serves the bundled palettes.
type CatalogHandler struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

type paletteResponse struct {
	Category string `json:"category"`
	catalog.Palette
}

type listPalettesResponse struct {
	Seasons []paletteResponse `json:"seasons"`
	Tones   []paletteResponse `json:"tones"`
}

// Palettes handles GET /api/palettes.
func (h *CatalogHandler) Palettes(w http.ResponseWriter, r *http.Request) {
	resp := listPalettesResponse{
		Seasons: h.palettes(color.Seasons()),
		Tones:   h.palettes(color.Tones()),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) palettes(cats []color.Category) []paletteResponse {
	out := make([]paletteResponse, 0, len(cats))
	for _, c := range cats {
		p, err := h.catalog.Palette(string(c))
		if err != nil {
			continue
		}
		out = append(out, paletteResponse{Category: string(c), Palette: p})
	}
	return out
}
