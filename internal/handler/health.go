package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/ttsstream/internal/process"
)

// SessionCounter reports the number of open websocket sessions.
type SessionCounter interface {
	Count() int
}

type HealthHandler struct {
	sessions SessionCounter
	tools    []process.Tool
}

func NewHealthHandler(sessions SessionCounter, tools ...process.Tool) *HealthHandler {
	return &HealthHandler{sessions: sessions, tools: tools}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	tools := fiber.Map{}
	for _, t := range h.tools {
		ok := t.Available()
		tools[t.Name] = ok
		if !ok {
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"sessions": h.sessions.Count(),
		"tools":    tools,
	})
}
