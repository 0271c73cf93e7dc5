package mockbackend

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Responder answers get_unread_count with the given count and ping with pong until the session ends.
func Responder(unread int) Script {
	return func(s *Session) {
		for {
			m, err := s.Next(time.Minute)
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			if err != nil {
				continue
			}

			switch m.Type {
			case "get_unread_count":
				_ = s.Push("unread_count_update", map[string]int{"count": unread})
			case "ping":
				_ = s.Push("pong", struct{}{})
			}
		}
	}
}

// Periodic runs Responder and pushes a fake card payment notification every interval.
func Periodic(every time.Duration, unread int) Script {
	return func(s *Session) {
		go Responder(unread)(s)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for n := 1; ; n++ {
			select {
			case <-s.Done():
				return
			case now := <-ticker.C:
				_ = s.Push("notification", map[string]any{
					"id":         fmt.Sprintf("mock-%d", n),
					"title":      "Card payment",
					"message":    fmt.Sprintf("Payment #%d of 12.50 EUR approved", n),
					"type":       "transaction",
					"priority":   "normal",
					"created_at": now.UTC().Format(time.RFC3339),
				})
			}
		}
	}
}
