package notifyws

import (
	"context"
	"net/url"
)

type (
	CloseChan chan struct{}

	// Connection is a single wire link to the notification endpoint. It is opened at most once;
	// the transport builds a fresh one for every attempt.
	Connection interface {
		// Open dials the endpoint. It blocks until the link is established or fails.
		Open(ctx context.Context) error
		// Write queues a frame for sending. It fails once the connection is closed.
		Write(f Frame) error
		// Recv delivers inbound frames in arrival order.
		Recv() <-chan Frame
		// Close performs a clean (1000) shutdown and releases every resource.
		Close()
		// CloseChan is closed once the connection is gone, for whatever reason.
		CloseChan() CloseChan
		// CloseErr explains why the connection closed. *CloseError carries the peer's close code.
		CloseErr() error
	}

	ConnectionFactory func(endpoint url.URL) Connection
)
