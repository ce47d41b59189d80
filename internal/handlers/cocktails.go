package handlers

import (
	"errors"
	"net/http"
	"time"

	"potion_master/internal/bus"
	"potion_master/internal/models"
	"potion_master/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK      = "ok"
	statusStarted = "started"
	statusStopped = "stopped"

	errInvalidBodyPref = "invalid body: "
)

// statusFor maps service and hardware errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidChannel),
		errors.Is(err, models.ErrUnmappedIngredient),
		errors.Is(err, models.ErrEmptyRecipe),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidTimeRange):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyPreparing):
		return http.StatusConflict
	case errors.Is(err, models.ErrHardwareUnavailable),
		errors.Is(err, bus.ErrBusUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if httpCode >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondError reports err with the status statusFor picks.
func (h *Handler) respondError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	h.logAndJSONError(c, statusFor(err), err.Error(), logKey, err, kv...)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	resp := gin.H{
		"status":    statusOK,
		"timestamp": time.Now().UTC(),
	}
	if h.services.Hardware != nil {
		resp["hardware"] = h.services.Hardware.Status()
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Prepare a cocktail
// @Description  Starts pouring in the background and returns immediately. Progress is streamed on /api/events.
// @Description  "ingredients" is either an array [{"ingredient":"vodka","amount":40}] or an object {"vodka":40,"lemon_juice":20}; object keys are poured in document order.
// @Tags         cocktails
// @Accept       json
// @Produce      json
// @Param        body  body      models.Recipe  true  "Recipe"
// @Success      202   {object}  map[string]string  "status, sessionId"
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/cocktails/prepare [post]
func (h *Handler) prepareCocktail(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	id, err := h.services.Preparation.StartPour(c.Request.Context(), recipe)
	if err != nil {
		h.respondError(c, "cocktail_prepare_failed", err, "cocktail", recipe.CocktailID)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusStarted, "sessionId": id})
}

// @Summary      Stop pouring
// @Description  Cancels the running preparation, if any, and switches every pump off.
// @Tags         cocktails
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/cocktails/stop [post]
func (h *Handler) stopCocktail(c *gin.Context) {
	if err := h.services.Preparation.StopPour(c.Request.Context()); err != nil {
		h.respondError(c, "cocktail_stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStopped})
}

// @Summary      Current preparation
// @Tags         cocktails
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "preparing, preparation"
// @Router       /api/v1/cocktails/current [get]
func (h *Handler) currentPreparation(c *gin.Context) {
	prep, ok := h.services.Preparation.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"preparing": false, "preparation": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preparing": true, "preparation": prep})
}
