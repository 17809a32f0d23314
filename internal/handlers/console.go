package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ThomasChan/Farm-Land/internal/auth"
	apierrors "github.com/ThomasChan/Farm-Land/internal/errors"
	"github.com/ThomasChan/Farm-Land/internal/editform"
	"github.com/ThomasChan/Farm-Land/internal/middleware"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/repository"
	"github.com/ThomasChan/Farm-Land/internal/services"
	"github.com/ThomasChan/Farm-Land/internal/session"
	"github.com/ThomasChan/Farm-Land/internal/store"
)

// sessionKey is the context key for the resolved *session.Session.
const sessionKey = "console_session"

// sessionCookieMaxAge keeps the cookie for the browser session only.
const sessionCookieMaxAge = 0

// ConsoleHandler serves the editor console of every open session.
type ConsoleHandler struct {
	sessions *session.Manager
	secure   bool
}

// NewConsoleHandler creates a ConsoleHandler. secure marks the session
// cookie Secure, which production deployments behind TLS want.
func NewConsoleHandler(sessions *session.Manager, secure bool) *ConsoleHandler {
	return &ConsoleHandler{
		sessions: sessions,
		secure:   secure,
	}
}

// LoginRequest is the body of POST /api/v1/session/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// SelectRequest is the body of POST /api/v1/selection.
type SelectRequest struct {
	Index *int `json:"index" binding:"required,min=-1"`
}

// GeometryRequest is the body of PUT /api/v1/form/geometry.
type GeometryRequest struct {
	Text string `json:"text"`
}

// StyleRequest is the body of PUT /api/v1/form/style.
type StyleRequest struct {
	Value interface{} `json:"value"`
	Key   string      `json:"key" binding:"required"`
}

// DeleteTokenRequest is the body of the delete confirm and cancel endpoints.
type DeleteTokenRequest struct {
	Token string `json:"token" binding:"required,uuid"`
}

// CenterRequest is the body of POST /api/v1/map/center.
type CenterRequest struct {
	Lng *float64 `json:"lng" binding:"required"`
	Lat *float64 `json:"lat" binding:"required"`
}

// LoginResponse opens a console screen. LoadError is set when the session
// was opened but the first load of the collection failed; the list is then
// empty and the map sits on the fallback view.
type LoginResponse struct {
	View      *services.View  `json:"view"`
	SessionID string          `json:"sessionId"`
	Backend   string          `json:"backend"`
	LoadError string          `json:"loadError,omitempty"`
	Parcels   []models.Parcel `json:"parcels"`
}

// ListResponse is the current list and selection of a session.
type ListResponse struct {
	Parcels  []models.Parcel `json:"parcels"`
	Selected int             `json:"selected"`
	Version  uint64          `json:"version"`
}

// SelectionResponse reports the selected index after a selection change.
type SelectionResponse struct {
	Selected int `json:"selected"`
}

// RequireSession resolves the caller's session and rejects requests that
// have none or whose gate is logged out.
func (h *ConsoleHandler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetSessionID(c)
		if id == "" {
			apierrors.Unauthorized(c, "Login required")
			c.Abort()
			return
		}

		s, err := h.sessions.Get(id)
		if err != nil || !s.Gate.Authenticated() {
			apierrors.Unauthorized(c, "Session expired, login again")
			c.Abort()
			return
		}

		c.Set(sessionKey, s)
		c.Next()
	}
}

// Login handles POST /api/v1/session/login.
// It checks the password, opens a session and loads the collection.
func (h *ConsoleHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	s, err := h.sessions.Login(c.Request.Context(), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmptyPassword):
			apierrors.BadRequest(c, "Password is required", nil)
		case errors.Is(err, auth.ErrAuthRejected):
			apierrors.Unauthorized(c, "Wrong password")
		case errors.Is(err, auth.ErrTransport):
			apierrors.BadGateway(c, "Authentication service unavailable", err)
		default:
			apierrors.InternalServerError(c, "Failed to open session", err)
		}
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, s.ID, sessionCookieMaxAge, "/", "", h.secure, true)

	response := LoginResponse{
		SessionID: s.ID,
		Backend:   s.Surface.Backend(),
	}

	view, err := s.Sync.Load(c.Request.Context())
	if err != nil {
		response.LoadError = err.Error()
		fallback := services.InitialView(nil)
		view = &fallback
		s.Surface.Notify(editform.LevelError, "Load failed: "+err.Error())
	}
	response.View = view
	response.Parcels = s.Store.Parcels()

	c.JSON(http.StatusOK, response)
}

// Logout handles DELETE /api/v1/session.
func (h *ConsoleHandler) Logout(c *gin.Context) {
	s := currentSession(c)
	if err := h.sessions.Remove(s.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		apierrors.InternalServerError(c, "Failed to close session", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secure, true)
	c.Status(http.StatusNoContent)
}

// ListParcels handles GET /api/v1/parcels.
func (h *ConsoleHandler) ListParcels(c *gin.Context) {
	snap := currentSession(c).Store.Snapshot()
	c.JSON(http.StatusOK, ListResponse{
		Parcels:  snap.Parcels,
		Selected: snap.Selected,
		Version:  snap.Version,
	})
}

// Reload handles POST /api/v1/parcels/reload.
// It refetches the collection and recenters the map.
func (h *ConsoleHandler) Reload(c *gin.Context) {
	s := currentSession(c)
	view, err := s.Sync.Load(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to reload parcels")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Select handles POST /api/v1/selection. An index of -1 clears the selection.
func (h *ConsoleHandler) Select(c *gin.Context) {
	var req SelectRequest
	if !bindJSON(c, &req) {
		return
	}

	s := currentSession(c)
	s.Select(*req.Index)
	c.JSON(http.StatusOK, SelectionResponse{Selected: s.Store.Selected()})
}

// Next handles POST /api/v1/navigation/next.
func (h *ConsoleHandler) Next(c *gin.Context) {
	c.JSON(http.StatusOK, SelectionResponse{Selected: currentSession(c).Next()})
}

// Prev handles POST /api/v1/navigation/prev.
func (h *ConsoleHandler) Prev(c *gin.Context) {
	c.JSON(http.StatusOK, SelectionResponse{Selected: currentSession(c).Prev()})
}

// GetForm handles GET /api/v1/form.
// Returns 204 No Content when nothing is selected.
func (h *ConsoleHandler) GetForm(c *gin.Context) {
	view := currentSession(c).Form.View()
	if view == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PutGeometry handles PUT /api/v1/form/geometry.
func (h *ConsoleHandler) PutGeometry(c *gin.Context) {
	var req GeometryRequest
	if !bindJSON(c, &req) {
		return
	}

	form := currentSession(c).Form
	if err := form.EditGeometry(req.Text); err != nil {
		respondError(c, err, "Failed to edit geometry")
		return
	}
	c.JSON(http.StatusOK, form.View())
}

// CommitGeometry handles POST /api/v1/form/geometry/commit.
func (h *ConsoleHandler) CommitGeometry(c *gin.Context) {
	form := currentSession(c).Form
	if err := form.CommitGeometry(); err != nil {
		respondError(c, err, "Failed to commit geometry")
		return
	}
	c.JSON(http.StatusOK, form.View())
}

// PutStyle handles PUT /api/v1/form/style.
func (h *ConsoleHandler) PutStyle(c *gin.Context) {
	var req StyleRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Value == nil {
		apierrors.BadRequest(c, "Style value is required", map[string]interface{}{"key": req.Key})
		return
	}

	form := currentSession(c).Form
	if err := form.SetStyle(req.Key, req.Value); err != nil {
		respondError(c, err, "Failed to set style")
		return
	}
	c.JSON(http.StatusOK, form.View())
}

// Update handles POST /api/v1/form/update.
// It sends the selected parcel to the collection and returns the new list.
func (h *ConsoleHandler) Update(c *gin.Context) {
	s := currentSession(c)
	if err := s.Form.Update(c.Request.Context()); err != nil {
		respondError(c, err, "Failed to update parcel")
		return
	}
	h.ListParcels(c)
}

// RequestDelete handles POST /api/v1/form/delete.
// Nothing is deleted until the returned token is confirmed.
func (h *ConsoleHandler) RequestDelete(c *gin.Context) {
	confirmation, err := currentSession(c).Form.RequestDelete()
	if err != nil {
		respondError(c, err, "Failed to request delete")
		return
	}
	c.JSON(http.StatusOK, confirmation)
}

// ConfirmDelete handles POST /api/v1/form/delete/confirm.
func (h *ConsoleHandler) ConfirmDelete(c *gin.Context) {
	var req DeleteTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := currentSession(c).Form.ConfirmDelete(c.Request.Context(), req.Token); err != nil {
		respondError(c, err, "Failed to delete parcel")
		return
	}
	h.ListParcels(c)
}

// CancelDelete handles POST /api/v1/form/delete/cancel.
func (h *ConsoleHandler) CancelDelete(c *gin.Context) {
	var req DeleteTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := currentSession(c).Form.CancelDelete(req.Token); err != nil {
		respondError(c, err, "Failed to cancel delete")
		return
	}
	c.Status(http.StatusNoContent)
}

// MapCenter handles POST /api/v1/map/center.
// It persists the map center; the list is not touched.
func (h *ConsoleHandler) MapCenter(c *gin.Context) {
	var req CenterRequest
	if !bindJSON(c, &req) {
		return
	}

	center := models.Point{Lng: *req.Lng, Lat: *req.Lat}
	if err := currentSession(c).Sync.Recenter(c.Request.Context(), center); err != nil {
		respondError(c, err, "Failed to save map center")
		return
	}
	c.Status(http.StatusNoContent)
}

// WS handles GET /api/v1/map/ws, the map surface's websocket.
func (h *ConsoleHandler) WS(c *gin.Context) {
	s := currentSession(c)
	if err := s.Hub.Serve(c.Writer, c.Request); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Warn("Map socket closed", map[string]interface{}{
				"session_id": s.ID,
				"error":      err.Error(),
			})
		}
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// bindJSON binds the request body and writes the error response on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		// Check if it's a validation error
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return false
		}
		// Generic bad request for other binding errors
		apierrors.BadRequest(c, "Invalid request body", nil)
		return false
	}
	return true
}

// respondError maps console errors onto the error envelope.
func respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, editform.ErrNoSelection):
		apierrors.NotFound(c, "No parcel selected")
	case errors.Is(err, store.ErrIndexOutOfRange):
		apierrors.NotFound(c, "Selected parcel no longer exists")
	case errors.Is(err, editform.ErrUnknownToken):
		apierrors.NotFound(c, "Delete confirmation not found")
	case errors.Is(err, editform.ErrRowBusy):
		apierrors.Conflict(c, "A request for this parcel is already in flight")
	case errors.Is(err, models.ErrGeometryParse):
		apierrors.UnprocessableEntity(c, "Geometry could not be parsed", map[string]interface{}{
			"geometry": err.Error(),
		})
	case errors.Is(err, models.ErrUnknownStyleKey), errors.Is(err, models.ErrInvalidStyleValue):
		apierrors.UnprocessableEntity(c, "Style could not be applied", map[string]interface{}{
			"style": err.Error(),
		})
	case errors.Is(err, repository.ErrMissingID):
		apierrors.UnprocessableEntity(c, "Parcel has not been saved yet", nil)
	case errors.Is(err, services.ErrInvalidCoordinates):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, store.ErrClosed):
		apierrors.Unauthorized(c, "Session closed")
	case errors.Is(err, repository.ErrTransport):
		apierrors.BadGateway(c, message, err)
	default:
		apierrors.InternalServerError(c, message, err)
	}
}
