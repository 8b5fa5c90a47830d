package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) lnurlWellKnown(c *gin.Context) {
	resp, err := h.lnurl.WellKnown(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) lnurlCallback(c *gin.Context) {
	amountMsat, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		writeError(c, invalidBody(err))
		return
	}

	resp, err := h.lnurl.Callback(c.Request.Context(), c.Param("username"), amountMsat, c.Query("comment"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
