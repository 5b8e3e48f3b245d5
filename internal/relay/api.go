package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"blackboard/internal/persist"
	"blackboard/internal/room"
)

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// storeStatus maps a store error onto an HTTP status.
func storeStatus(err error) int {
	if errors.Is(err, persist.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) listRooms(c *gin.Context) {
	ids, err := s.store.List(c.Request.Context())
	if err != nil {
		writeError(c, storeStatus(err), err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": ids})
}

func (s *Server) createRoom(c *gin.Context) {
	rec := &persist.Record{
		RoomID:    room.NewID(),
		UpdatedAt: time.Now().UTC(),
	}
	rec.Normalize()
	if err := s.store.Put(c.Request.Context(), rec); err != nil {
		writeError(c, storeStatus(err), err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getRoom(c *gin.Context) {
	id := c.Param("roomId")
	if !room.Valid(id) {
		writeError(c, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}
	rec, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, storeStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// putRoom replaces a room's pages wholesale, creating the room if needed.
func (s *Server) putRoom(c *gin.Context) {
	id := c.Param("roomId")
	if !room.Valid(id) {
		writeError(c, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, errors.New("room too large"))
			return
		}
		writeError(c, http.StatusBadRequest, err)
		return
	}
	var rec persist.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid room body"))
		return
	}
	if rec.RoomID != "" && rec.RoomID != id {
		writeError(c, http.StatusBadRequest, errors.New("room id mismatch"))
		return
	}
	if len(rec.Pages) > s.cfg.Board.MaxPages {
		writeError(c, http.StatusRequestEntityTooLarge, fmt.Errorf("room has more than %d pages", s.cfg.Board.MaxPages))
		return
	}
	rec.RoomID = id
	rec.UpdatedAt = time.Now().UTC()
	rec.Normalize()

	if err := s.store.Put(c.Request.Context(), &rec); err != nil {
		writeError(c, storeStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, &rec)
}

// deleteRoom removes a stored room. Connected participants are not affected.
func (s *Server) deleteRoom(c *gin.Context) {
	id := c.Param("roomId")
	if !room.Valid(id) {
		writeError(c, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}
	ok, err := s.store.Exists(c.Request.Context(), id)
	if err == nil && !ok {
		err = persist.ErrNotFound
	}
	if err == nil {
		err = s.store.Delete(c.Request.Context(), id)
	}
	if err != nil {
		writeError(c, storeStatus(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) participants(c *gin.Context) {
	id := c.Param("roomId")
	participants := []Participant{}
	if r := s.hub.Room(id); r != nil {
		participants = r.Participants()
	}
	c.JSON(http.StatusOK, gin.H{"roomId": id, "participants": participants})
}
