package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"potion_master/internal/models"

	"github.com/gin-gonic/gin"
)

const errNoOperator = "operator not authenticated"

type relayRequest struct {
	State *bool `json:"state" binding:"required"`
}

// @Summary      Hardware status
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  models.HardwareStatus
// @Router       /api/v1/hardware/status [get]
func (h *Handler) hardwareStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Hardware.Status())
}

// @Summary      Tare the scale
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/hardware/tare [post]
func (h *Handler) tare(c *gin.Context) {
	if err := h.services.Hardware.Tare(c.Request.Context()); err != nil {
		h.respondError(c, "scale_tare_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "tared", "weight": h.services.Hardware.Status().Weight})
}

// @Summary      Switch one relay
// @Tags         maintenance
// @Accept       json
// @Produce      json
// @Param        id    path      int   true  "Relay channel 0-7"
// @Param        body  body      relayRequest  true  "Desired state"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/maintenance/relay/{id} [post]
// @Security     BearerAuth
func (h *Handler) setRelay(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.respondError(c, "relay_bad_channel", fmt.Errorf("%w: %q", models.ErrInvalidChannel, c.Param("id")))
		return
	}
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	op, ok := currentOperator(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errNoOperator})
		return
	}
	if err := h.services.OverrideRelay(c.Request.Context(), op, idx, *req.State); err != nil {
		h.respondError(c, "relay_set_failed", err, "channel", idx, "operator", op.Username)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": idx, "state": *req.State, "operator": op.Username})
}

// @Summary      Start a cleaning cycle
// @Description  Runs every pump in turn to flush the lines.
// @Tags         maintenance
// @Produce      json
// @Success      202  {object}  map[string]string  "status, sessionId"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/maintenance/cleaning-cycle [post]
// @Security     BearerAuth
func (h *Handler) startCleaning(c *gin.Context) {
	op, ok := currentOperator(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errNoOperator})
		return
	}
	id, err := h.services.RunCleaning(c.Request.Context(), op)
	if err != nil {
		h.respondError(c, "cleaning_start_failed", err, "operator", op.Username)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusStarted, "sessionId": id})
}
