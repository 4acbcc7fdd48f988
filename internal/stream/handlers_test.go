package stream

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T, hub *Hub) string {
	t.Helper()

	app := fiber.New()
	RegisterRoutes(app.Group("/tracking"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String()
}

func TestTrackingHandlerUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/tracking"), NewHub(nil, nil, Options{}))

	req := httptest.NewRequest(http.MethodGet, "/tracking/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestTrackingHandlerSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(nil, nil, Options{})
	defer hub.Close()
	base := startTestServer(t, hub)

	viewer, _, err := websocket.DefaultDialer.Dial(base+"/tracking/ws", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer viewer.Close()

	vehicle, _, err := websocket.DefaultDialer.Dial(base+"/tracking/ws", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer vehicle.Close()

	if err := viewer.WriteMessage(websocket.TextMessage, []byte(`{"type":"SUBSCRIBE","trip_id":"trip-1"}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// malformed input is dropped without killing the connection
	if err := vehicle.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := vehicle.WriteMessage(websocket.TextMessage, []byte(`{"type":"VEHICLE_POSITION","trip_id":"trip-1","position":{"lat":-6.2,"lng":106.8}}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_ = viewer.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := viewer.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !contains(raw, TypeVehicleBroadcast) {
		t.Fatalf("unexpected broadcast payload: %s", raw)
	}
}

func TestTrackingHandlerCatchUpOnConnect(t *testing.T) {
	hub := NewHub(nil, nil, Options{})
	defer hub.Close()
	base := startTestServer(t, hub)

	reporter := hub.Register()
	hub.PublishVehicle("trip-2", reporter, Position{Lat: 1, Lng: 2})

	viewer, _, err := websocket.DefaultDialer.Dial(base+"/tracking/ws", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer viewer.Close()

	if err := viewer.WriteMessage(websocket.TextMessage, []byte(`{"type":"SUBSCRIBE","trip_id":"trip-2"}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_ = viewer.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := viewer.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !contains(raw, TypeVehicleBroadcast) {
		t.Fatalf("expected vehicle catch-up, got %s", raw)
	}
}

func TestDirectHandlerDelivery(t *testing.T) {
	hub := NewHub(nil, nil, Options{})
	defer hub.Close()
	base := startTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/tracking/ws/direct/driver-7", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	hub.NotifyGlobal("driver-7", []byte(`{"type":"NOTICE","body":"trip cancelled"}`))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !contains(raw, "trip cancelled") {
		t.Fatalf("unexpected notice: %s", raw)
	}
}

func TestTrackingHandlerDisconnectCleansUp(t *testing.T) {
	hub := NewHub(nil, nil, Options{})
	defer hub.Close()
	base := startTestServer(t, hub)

	viewer, _, err := websocket.DefaultDialer.Dial(base+"/tracking/ws", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if err := viewer.WriteMessage(websocket.TextMessage, []byte(`{"type":"SUBSCRIBE","trip_id":"trip-3"}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	viewer.Close()
	time.Sleep(50 * time.Millisecond)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.channels["trip-3"].subscribers) != 0 {
		t.Fatalf("expected subscriber removed on close")
	}
}

func contains(raw []byte, sub string) bool {
	return strings.Contains(string(raw), sub)
}
