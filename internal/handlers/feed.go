package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/feed"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
)

// Feed handles GET /posts. Anonymous viewers get trending; authenticated
// viewers get followed-first ranking. The envelope reports has_more rather
// than a total.
func (h *Handlers) Feed(c *gin.Context) {
	var viewer *models.User
	if u, exists := c.Get("user"); exists {
		if userPtr, ok := u.(*models.User); ok {
			viewer = userPtr
		}
	}

	page := util.ParseInt(c.Query("page"), 1)
	limit := util.ParseInt(c.Query("limit"), feed.MinLimit)

	result, err := h.feed.ComposePage(c.Request.Context(), viewer, page, limit)
	if err != nil {
		util.RespondInternalError(c, "failed to compose feed")
		return
	}
	util.RespondData(c, result)
}
