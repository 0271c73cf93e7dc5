package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sonirico/notifyws"
)

type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer

	statusOK    *color.Color
	statusDown  *color.Color
	statusError *color.Color
	unread      *color.Color
	title       *color.Color
}

func newEventPrinter(out io.Writer, noColor bool) *eventPrinter {
	p := &eventPrinter{
		out:         out,
		statusOK:    color.New(color.FgGreen),
		statusDown:  color.New(color.FgYellow),
		statusError: color.New(color.FgRed, color.Bold),
		unread:      color.New(color.FgMagenta),
		title:       color.New(color.FgCyan, color.Bold),
	}

	if noColor {
		for _, c := range []*color.Color{p.statusOK, p.statusDown, p.statusError, p.unread, p.title} {
			c.DisableColor()
		}
	}

	return p
}

func (p *eventPrinter) status(s notifyws.ConnectionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case s.Connected:
		_, _ = p.statusOK.Fprintln(p.out, "[status] connected")
	case s.Error:
		_, _ = p.statusError.Fprintln(p.out, "[status] disconnected (error)")
	default:
		_, _ = p.statusDown.Fprintln(p.out, "[status] disconnected")
	}
}

func (p *eventPrinter) unreadCount(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = p.unread.Fprintf(p.out, "[unread] %d\n", n)
}

func (p *eventPrinter) notification(n notifyws.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "[notification] %s %s (%s)\n", p.title.Sprint(n.Title), n.Message, n.ID)
}

// exhaustedPollInterval bounds how long listen keeps running after the transport gave up on
// dials that never opened, since those report no status event.
const exhaustedPollInterval = 100 * time.Millisecond

func getListenCmd(gs *globalState) *cobra.Command {
	var (
		token, userID string
		headers       []string
		insecure      bool
	)

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "connect and print notification events until interrupted",
		Long: `Connect to the notification endpoint with a fixed credential and print every
connection status change, unread count and notification. The command exits on
interrupt or once the transport stops reconnecting: after a protocol error
close, a rejected handshake or when every reconnect attempt failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConsolidatedConfig(gs, cmd.Flags())
			if err != nil {
				return err
			}

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			creds := notifyws.StaticCredentials{AccessToken: token, UserID: userID}
			if creds.AccessToken == "" {
				creds.AccessToken, _ = gs.lookupEnv(envPrefix + "_ACCESS_TOKEN")
			}
			if creds.UserID == "" {
				creds.UserID, _ = gs.lookupEnv(envPrefix + "_USER_ID")
			}
			if !notifyws.Credential(creds).Valid() {
				return errors.New("an access token and a user id are required")
			}

			tr, err := notifyws.New(cfg, creds,
				notifyws.WithLogger(notifyws.NewLogrusLogger(gs.logger)),
				notifyws.WithDialer(newDialer(cfg, insecure)),
				notifyws.WithHeader(header),
			)
			if err != nil {
				return err
			}
			defer tr.Dispose()

			failed := make(chan error, 1)
			fail := func(err error) {
				select {
				case failed <- err:
				default:
				}
			}

			p := newEventPrinter(gs.stdout, gs.flags.noColor)

			tr.OnConnectionStatus(func(s notifyws.ConnectionStatus) {
				p.status(s)
				switch {
				case s.Error:
					fail(errors.Wrap(notifyws.ErrEndpointUnavailable, "giving up"))
				case !s.Connected && tr.Exhausted():
					fail(errors.Wrap(notifyws.ErrReconnectExhausted, "giving up"))
				}
			})
			tr.OnUnreadCount(p.unreadCount)
			tr.OnNotification(p.notification)

			tr.Connect()

			ticker := time.NewTicker(exhaustedPollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-cmd.Context().Done():
					gs.logger.Debug("interrupted, disconnecting")
					return nil
				case err := <-failed:
					return err
				case <-ticker.C:
					if !tr.Exhausted() {
						continue
					}
					// A status listener may still be about to report why.
					select {
					case err := <-failed:
						return err
					case <-time.After(exhaustedPollInterval):
					}
					return errors.Wrapf(notifyws.ErrReconnectExhausted, "giving up after %d attempts", tr.Attempts())
				}
			}
		},
	}

	listenCmd.Flags().AddFlagSet(configFlagSet())
	listenCmd.Flags().StringVar(&token, "token", "", "access token, also read from NOTIFYWS_ACCESS_TOKEN")
	listenCmd.Flags().StringVar(&userID, "user-id", "", "user id, also read from NOTIFYWS_USER_ID")
	listenCmd.Flags().StringArrayVarP(&headers, "header", "H", nil,
		`extra handshake header as "Name: value", can be repeated`)
	listenCmd.Flags().BoolVar(&insecure, "insecure-skip-tls-verify", false,
		"skip verification of the server TLS certificate")

	return listenCmd
}

func newDialer(cfg notifyws.Config, insecure bool) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: insecure, //nolint:gosec
		},
	}
}

func parseHeaders(values []string) (http.Header, error) {
	header := http.Header{}
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Errorf("invalid header %q, expected \"Name: value\"", v)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}
