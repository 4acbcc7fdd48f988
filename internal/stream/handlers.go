package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := hub.Register()
		defer hub.Disconnect(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			msg := Decode(raw)
			if msg == nil {
				// malformed messages are dropped at the boundary
				continue
			}
			switch msg.Type {
			case TypeSubscribe:
				hub.Subscribe(msg.TripID, client)
			case TypeVehiclePosition:
				hub.PublishVehicle(msg.TripID, client, *msg.Position)
			case TypeRiderPosition:
				hub.PublishRider(msg.TripID, client, RiderPosition{
					RiderID:     msg.RiderID,
					DisplayName: msg.DisplayName,
					Position:    *msg.Position,
				})
			}
		}
		<-done
	}))

	r.Get("/ws/direct/:entityID", websocket.New(func(c *websocket.Conn) {
		client := hub.Register()
		hub.RegisterGlobal(c.Params("entityID"), client)
		defer hub.Disconnect(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
