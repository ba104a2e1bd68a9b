package room

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"StayDesk/entity"
	"StayDesk/internal/lib/api/cont"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/lib/sl"
	"StayDesk/internal/service/rooms"
)

// Messages returns paginated message history for one room, newest first.
// Only members can read a room's history.
func Messages(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.room")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity := cont.GetIdentity(r.Context())
		if identity == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.ErrorCode(response.CodeAuthFailed, "Not authenticated"))
			return
		}

		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorCode(response.CodeBadRequest, "room_id is required"))
			return
		}

		limit := 50
		offset := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
				limit = v
			}
		}
		if o := r.URL.Query().Get("offset"); o != "" {
			if v, err := strconv.Atoi(o); err == nil && v >= 0 {
				offset = v
			}
		}

		messages, err := handler.History(identity.ID, roomID, limit, offset)
		if err != nil {
			if errors.Is(err, rooms.ErrNotMember) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.ErrorCode(response.CodeNotMember, "Not a room member"))
				return
			}
			logger.Error("failed to get messages",
				slog.String("room", roomID),
				sl.Err(err),
			)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ErrorCode(response.CodeDBError, "Failed to get messages"))
			return
		}

		if messages == nil {
			messages = []entity.Message{}
		}

		render.JSON(w, r, response.Ok(messages))
	}
}
