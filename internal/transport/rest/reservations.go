package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reservo/backend/internal/domain"
	"reservo/backend/internal/service/reservations"
	"reservo/backend/internal/store"
)

const (
	msgInternal      = "internal error"
	msgUpdateMissing = "NOK - Reservation not found"
	msgDeleteMissing = "Nothing to DELETE!"
	msgBadBody       = "request body must be a JSON object"
)

type reservationsService interface {
	Create(ctx context.Context, c reservations.Candidate) (domain.Reservation, error)
	Replace(ctx context.Context, id int64, c reservations.Candidate) (domain.Reservation, error)
	Patch(ctx context.Context, id int64, body map[string]json.RawMessage) (domain.Reservation, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f store.Filter) ([]domain.Reservation, error)
	Seed(ctx context.Context) ([]string, error)
}

type ReservationsHandler struct {
	svc reservationsService
	loc *time.Location
	log *slog.Logger
}

func NewReservationsHandler(svc reservationsService, loc *time.Location, log *slog.Logger) *ReservationsHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReservationsHandler{
		svc: svc,
		loc: loc,
		log: log.With(slog.String("component", "http.reservations")),
	}
}

func (h *ReservationsHandler) register(r gin.IRoutes) {
	r.POST("/reservation", h.create)
	r.PUT("/reservation/:id", h.replace)
	r.PATCH("/reservation/:id", h.patch)
	r.DELETE("/reservation/:id", h.delete)
	r.GET("/reservations", h.list)
	r.GET("/initdb", h.initDB)
}

type debugResponse struct {
	DebugMsg    string              `json:"debugMsg"`
	Reservation *domain.Reservation `json:"reservation,omitempty"`
}

type errorResponse struct {
	ErrorMsg string `json:"errorMsg"`
}

func (h *ReservationsHandler) create(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	cand, err := reservations.ParseCandidate(body, h.loc)
	if err != nil {
		h.fail(c, "create", err, "")
		return
	}
	r, err := h.svc.Create(c.Request.Context(), cand)
	if err != nil {
		h.fail(c, "create", err, "")
		return
	}
	c.JSON(http.StatusCreated, debugResponse{DebugMsg: "INSERT success!", Reservation: &r})
}

func (h *ReservationsHandler) replace(c *gin.Context) {
	id, err := reservations.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, "replace", err, "")
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	cand, err := reservations.ParseCandidate(body, h.loc)
	if err != nil {
		h.fail(c, "replace", err, "")
		return
	}
	r, err := h.svc.Replace(c.Request.Context(), id, cand)
	if err != nil {
		h.fail(c, "replace", err, msgUpdateMissing)
		return
	}
	c.JSON(http.StatusCreated, debugResponse{DebugMsg: "PUT success!", Reservation: &r})
}

func (h *ReservationsHandler) patch(c *gin.Context) {
	id, err := reservations.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, "patch", err, "")
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	r, err := h.svc.Patch(c.Request.Context(), id, body)
	if err != nil {
		h.fail(c, "patch", err, msgUpdateMissing)
		return
	}
	c.JSON(http.StatusCreated, debugResponse{DebugMsg: "PATCH success!", Reservation: &r})
}

func (h *ReservationsHandler) delete(c *gin.Context) {
	id, err := reservations.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, "delete", err, "")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "delete", err, msgDeleteMissing)
		return
	}
	c.JSON(http.StatusOK, debugResponse{DebugMsg: "DELETE success!"})
}

func (h *ReservationsHandler) list(c *gin.Context) {
	f, err := reservations.BuildFilter(c.Request.URL.Query(), h.loc)
	if err != nil {
		h.fail(c, "list", err, "")
		return
	}
	rs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "list", err, "")
		return
	}
	c.JSON(http.StatusOK, rs)
}

func (h *ReservationsHandler) initDB(c *gin.Context) {
	done, err := h.svc.Seed(c.Request.Context())
	if err != nil {
		h.log.Error("seed failed", slog.Int("completed_steps", len(done)), slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, errorResponse{ErrorMsg: msgInternal})
		return
	}
	out := make([]debugResponse, 0, len(done))
	for _, msg := range done {
		out = append(out, debugResponse{DebugMsg: msg})
	}
	c.JSON(http.StatusOK, out)
}

// readBody decodes a JSON object body. Form-encoded bodies are accepted too
// and every value is treated as a string. An empty body is an empty object.
func (h *ReservationsHandler) readBody(c *gin.Context) (map[string]json.RawMessage, bool) {
	body := map[string]json.RawMessage{}

	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{ErrorMsg: msgBadBody})
			return nil, false
		}
		for key := range c.Request.PostForm {
			raw, _ := json.Marshal(c.Request.PostForm.Get(key))
			body[key] = raw
		}
		return body, true
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorMsg: msgBadBody})
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return body, true
	}
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorMsg: msgBadBody})
		return nil, false
	}
	return body, true
}

func (h *ReservationsHandler) fail(c *gin.Context, op string, err error, notFoundMsg string) {
	log := h.log.With(slog.String("op", op))

	var vErr *reservations.ValidationError
	if errors.As(err, &vErr) {
		log.Info("request rejected", slog.String("kind", vErr.Kind.String()), slog.String("reason", vErr.Error()))
		c.JSON(http.StatusBadRequest, errorResponse{ErrorMsg: vErr.Error()})
		return
	}
	if notFoundMsg != "" && errors.Is(err, store.ErrNotFound) {
		log.Info("reservation not found", slog.String("id", c.Param("id")))
		c.JSON(http.StatusNotFound, errorResponse{ErrorMsg: notFoundMsg})
		return
	}
	log.Error("request failed", slog.Any("err", err))
	c.JSON(http.StatusInternalServerError, errorResponse{ErrorMsg: msgInternal})
}
