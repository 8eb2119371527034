package http

import (
	"net/http"

	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/gin-gonic/gin"
)

type memberDTO struct {
	PeerID      domain.PeerID `json:"peer_id"`
	DisplayName string        `json:"display_name,omitempty"`
	Producers   int           `json:"producers"`
	Consumers   int           `json:"consumers"`
}

type roomDTO struct {
	core.RoomInfo
	Producers int         `json:"producer_count"`
	Members   []memberDTO `json:"members"`
}

type roomsHandler struct {
	orch *orch.Orchestrator
}

func (h *roomsHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

// get never creates a room.
func (h *roomsHandler) get(c *gin.Context) {
	name := domain.RoomName(c.Param("name"))
	room, ok := h.orch.Rooms.GetRoom(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	peers := h.orch.Topology.PeersInRoom(name)
	members := make([]memberDTO, 0, len(peers))
	for _, p := range peers {
		members = append(members, memberDTO{
			PeerID:      p.ID,
			DisplayName: p.DisplayName,
			Producers:   len(p.ProducerIDs),
			Consumers:   len(p.ConsumerIDs),
		})
	}
	c.JSON(http.StatusOK, roomDTO{
		RoomInfo: core.RoomInfo{
			Name:        name,
			RouterID:    room.Router().ID(),
			MemberCount: room.MemberCount(),
		},
		Producers: h.orch.Topology.ProducerCount(name),
		Members:   members,
	})
}

func (h *roomsHandler) evict(c *gin.Context) {
	name := domain.RoomName(c.Param("name"))
	if _, ok := h.orch.Rooms.GetRoom(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	n := h.orch.EvictRoom(name)
	c.JSON(http.StatusOK, gin.H{"room": name, "evicted": n})
}
