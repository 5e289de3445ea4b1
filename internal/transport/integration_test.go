//go:build integration

package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/mqtt"
)

// Run with:
//   go test -tags=integration -v ./internal/transport/...

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startBroker(t *testing.T, port int) *mochi.Server {
	t.Helper()
	server := mochi.New(&mochi.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp-" + strconv.Itoa(port),
		Address: "127.0.0.1:" + strconv.Itoa(port),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("starting broker: %v", err)
	}
	return server
}

func TestIntegration_InFlightCommandSurvivesReconnect(t *testing.T) {
	port := freePort(t)
	server := startBroker(t, port)

	cfg := config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: "127.0.0.1", Port: port, ClientID: "graylogic-test"},
		QoS:       1,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 2},
	}
	broker := mqtt.DefaultBroker(cfg)
	pool := mqtt.NewPool(cfg)
	defer pool.Close()
	hub := NewHub(pool, 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := hub.Open(ctx, broker, "kitchen")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer tr.Close()

	session, ok := pool.Get(broker.Key)
	if !ok {
		t.Fatal("no pooled session after Open")
	}
	if err := session.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected() error = %v", err)
	}
	reconnected := make(chan struct{}, 1)
	session.OnReconnected(func() { reconnected <- struct{}{} })

	commanded := make(chan struct{}, 1)
	err = server.Subscribe("cmnd/kitchen/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		if pk.TopicName == "cmnd/kitchen/Power1" {
			commanded <- struct{}{}
		}
	})
	if err != nil {
		t.Fatalf("broker subscribe: %v", err)
	}

	type result struct {
		power string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := tr.Send(ctx, command.Power(1, command.PowerOn))
		var power string
		if err == nil {
			err = reply.Decode("POWER", &power)
		}
		done <- result{power, err}
	}()

	select {
	case <-commanded:
	case <-ctx.Done():
		t.Fatal("command never reached the broker")
	}

	// The broker goes away with the command still awaiting its reply.
	server.Close()
	server = startBroker(t, port)
	defer server.Close()

	select {
	case <-reconnected:
	case res := <-done:
		t.Fatalf("Send() returned before the reply: %+v", res)
	case <-ctx.Done():
		t.Fatal("session did not reconnect")
	}
	if n := hub.Pending(broker); n != 1 {
		t.Fatalf("Pending() after reconnect = %d, want 1", n)
	}

	if err := server.Publish("stat/kitchen/RESULT", []byte(`{"POWER":"ON"}`), false, 0); err != nil {
		t.Fatalf("broker publish: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil || res.power != "ON" {
			t.Errorf("Send() = %q, %v; want ON", res.power, res.err)
		}
	case <-ctx.Done():
		t.Fatal("in-flight command did not resolve after reconnect")
	}
}
