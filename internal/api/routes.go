package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)
	app.Post("/ingest", h.Ingest)
	app.Get("/files", h.ListFiles)
	app.Delete("/files/:filename", h.DeleteFile)

	app.Get("/conversations", h.ListConversations)
	app.Post("/conversations", h.CreateConversation)
	app.Get("/conversations/:id", h.GetConversation)
	app.Put("/conversations/:id", h.UpdateConversation)
	app.Delete("/conversations/:id", h.DeleteConversation)
	app.Post("/conversations/:id/messages", h.AddMessage)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:conversation_id", websocket.New(h.Chat))
}
