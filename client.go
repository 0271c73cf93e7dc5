package notifyws

type (
	// Client is what consumers of realtime notifications depend on. *Transport implements it;
	// UI components should accept a Client so they can be tested against a fake.
	Client interface {
		// Connect starts connecting if there is a signed in user. It never blocks on the network.
		Connect()
		// Disconnect closes the link cleanly and cancels any pending reconnect.
		Disconnect()
		// Send transmits a message if the link is open and drops it otherwise.
		Send(m OutboundMessage)
		IsConnected() bool
		State() ConnectionState
		// Exhausted reports whether the transport stopped reconnecting on its own.
		Exhausted() bool

		On(event EventName, fn func(any)) Subscription
		OnNotification(fn func(Notification)) Subscription
		OnUnreadCount(fn func(count int)) Subscription
		OnConnectionStatus(fn func(ConnectionStatus)) Subscription
		Off(s Subscription)
	}

	// Subscription is the token returned by the On* methods. Pass it to Off to unregister.
	Subscription = Listener[EventName]
)
