package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/gin-gonic/gin"
)

type pickupRequestPayload struct {
	PickupAt time.Time `json:"pickup_at"`
}

type commitmentRequestPayload struct {
	PickupAt          time.Time `json:"pickup_at"`
	CommittedQuantity string    `json:"committed_quantity"`
}

type statusRequestPayload struct {
	Status string `json:"status"`
}

type listResponsePayload[T any] struct {
	Items []T `json:"items"`
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.ledger.Profile(c.Request.Context(), currentActor(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request ledger.ProfileInput
	if !h.bindJSON(c, &request) {
		return
	}
	profile, err := h.ledger.UpdateProfile(c.Request.Context(), currentActor(c), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleCreateAnnouncement(c *gin.Context) {
	var request ledger.AnnouncementInput
	if !h.bindJSON(c, &request) {
		return
	}
	announcement, err := h.ledger.CreateAnnouncement(c.Request.Context(), currentActor(c), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, announcement)
}

func (h *httpHandler) handleAvailableAnnouncements(c *gin.Context) {
	announcements, err := h.ledger.AvailableAnnouncements(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload[ledger.Announcement]{Items: announcements})
}

func (h *httpHandler) handleGetAnnouncement(c *gin.Context) {
	announcement, err := h.ledger.Announcement(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, announcement)
}

func (h *httpHandler) handleUpdateAnnouncement(c *gin.Context) {
	var request ledger.AnnouncementInput
	if !h.bindJSON(c, &request) {
		return
	}
	announcement, err := h.ledger.UpdateAnnouncement(c.Request.Context(), currentActor(c), c.Param("id"), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, announcement)
}

func (h *httpHandler) handleDeleteAnnouncement(c *gin.Context) {
	if err := h.ledger.DeleteAnnouncement(c.Request.Context(), currentActor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreateReservation(c *gin.Context) {
	var request pickupRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	reservation, err := h.ledger.CreateReservation(c.Request.Context(), currentActor(c), c.Param("id"), request.PickupAt)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

func (h *httpHandler) handleUpdateReservation(c *gin.Context) {
	var request pickupRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	reservation, err := h.ledger.UpdateReservation(c.Request.Context(), currentActor(c), c.Param("id"), request.PickupAt)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *httpHandler) handleReservationDetail(c *gin.Context) {
	detail, err := h.ledger.ReservationDetail(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleCreateNeed(c *gin.Context) {
	var request ledger.NeedInput
	if !h.bindJSON(c, &request) {
		return
	}
	need, err := h.ledger.CreateNeed(c.Request.Context(), currentActor(c), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, need)
}

func (h *httpHandler) handleOpenNeeds(c *gin.Context) {
	needs, err := h.ledger.OpenNeeds(c.Request.Context(), currentActor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload[ledger.Need]{Items: needs})
}

func (h *httpHandler) handleGetNeed(c *gin.Context) {
	need, err := h.ledger.Need(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, need)
}

func (h *httpHandler) handleUpdateNeed(c *gin.Context) {
	var request ledger.NeedInput
	if !h.bindJSON(c, &request) {
		return
	}
	need, err := h.ledger.UpdateNeed(c.Request.Context(), currentActor(c), c.Param("id"), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, need)
}

func (h *httpHandler) handleDeleteNeed(c *gin.Context) {
	if err := h.ledger.DeleteNeed(c.Request.Context(), currentActor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCommitHelp(c *gin.Context) {
	var request commitmentRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	commitment, err := h.ledger.CommitHelp(c.Request.Context(), currentActor(c), c.Param("id"), request.PickupAt, request.CommittedQuantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commitment)
}

func (h *httpHandler) handleTransition(kind ledger.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request statusRequestPayload
		if !h.bindJSON(c, &request) {
			return
		}
		next, err := ledger.ParseStatus(request.Status)
		if err != nil {
			h.writeError(c, err)
			return
		}
		record, err := h.ledger.TransitionStatus(c.Request.Context(), currentActor(c), kind, c.Param("id"), next)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func (h *httpHandler) handleListRecords(c *gin.Context) {
	kind, err := ledger.ParseKind(c.Param("kind"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	records, err := h.ledger.ListForActor(c.Request.Context(), currentActor(c), kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload[ledger.Record]{Items: records})
}
