// handlers_search.go - Full-text search over completed results
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/snaptext/backend/internal/search"
)

// SearchHandlerImpl implements the SearchHandler interface
type SearchHandlerImpl struct {
	index Searcher
}

// NewSearchHandler creates a search handler. A nil index makes every
// request answer 503.
func NewSearchHandler(index Searcher) SearchHandler {
	return &SearchHandlerImpl{index: index}
}

type searchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
}

// HandleSearch handles GET /api/search?q=&limit=
func (h *SearchHandlerImpl) HandleSearch(c echo.Context) error {
	if h.index == nil {
		return NewServiceUnavailableError("search index is disabled")
	}

	q := c.QueryParam("q")
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	hits, err := h.index.Search(c.Request().Context(), q, limit)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			return NewValidationError("q")
		}
		return NewInternalError("search failed", err)
	}
	return c.JSON(http.StatusOK, searchResponse{Query: q, Hits: hits})
}
