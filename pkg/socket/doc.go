// Package socket implements a reconnecting websocket client.
//
// A Client owns one logical connection to an endpoint. When the underlying
// socket closes, the client waits a fixed delay and dials again, up to
// MaxReconnectAttempts times between two successful opens. When the budget is
// spent the handler's OnMaxAttemptsReached is called and the client stays idle
// until Connect is called again.
//
// Events are delivered either to a Handler implementation, to HandlerFuncs,
// or as a channel of typed events through an EventStream.
//
// Example usage:
//
//	stream := socket.NewEventStream(64)
//	client, err := socket.New(*socket.DefaultConfig("ws://localhost:8080/ws/echo"), stream)
//	if err != nil {
//		return err
//	}
//	_ = client.Connect(ctx)
//	defer client.Close()
//
//	for ev := range stream.All() {
//		if ev.Kind == socket.EventOpen {
//			_ = client.Send(map[string]any{"prompt": "hello"})
//		}
//	}
package socket
