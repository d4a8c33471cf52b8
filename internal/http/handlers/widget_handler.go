package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetWidgetConfig godoc
// @ID          getWidgetConfig
// @Summary     Widget appearance settings
// @Description Returns the public subset of a chatbot's settings used to render the widget.
// @Tags        Widget
// @Produce     json
//
// @Param       chatbotId  path  string  true  "Chatbot ID"  format(uuid)
//
// @Success     200  {object}  services.WidgetConfig
// @Header      200  {string}  Cache-Control  "public, max-age=60"
// @Failure     403  {object}  handlers.ErrorResponse  "Chatbot inactive"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /widget/{chatbotId}/config [get]
func (h *Handlers) GetWidgetConfig(c *gin.Context) {
	cfg, err := h.widgetSvc.Config(c.Request.Context(), c.Param("chatbotId"))
	if err != nil {
		failService(c, err)
		return
	}

	maxAge := h.ConfigMaxAge
	if maxAge <= 0 {
		maxAge = 60
	}
	publicCache(c, maxAge)
	ok(c, http.StatusOK, cfg)
}
