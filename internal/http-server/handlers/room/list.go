package room

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"StayDesk/entity"
	"StayDesk/internal/lib/api/cont"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/lib/sl"
)

// List returns the caller's room sidebar: per room the display name,
// members, last message, unread count and online members.
func List(log *slog.Logger, handler Core) http.HandlerFunc {
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

		summaries, err := handler.Sidebar(r.Context(), identity.ID)
		if err != nil {
			logger.Error("failed to build sidebar", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ErrorCode(response.CodeDBError, "Failed to get rooms"))
			return
		}

		if summaries == nil {
			summaries = []entity.RoomSummary{}
		}

		render.JSON(w, r, response.Ok(summaries))
	}
}
