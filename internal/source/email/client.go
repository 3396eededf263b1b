package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/source"
)

// IMAPClient holds the settings needed to open authenticated sessions.
type IMAPClient struct {
	cfg      model.IMAPConfig
	password string
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(cfg model.IMAPConfig, password string) *IMAPClient {
	return &IMAPClient{cfg: cfg, password: password}
}

// Session is one authenticated IMAP connection. It is not safe for
// concurrent use.
type Session struct {
	client *imapclient.Client
	stop   func() bool
}

// Dial connects to the server, negotiates TLS according to the configured
// security mode, and authenticates. The session is torn down if ctx is
// cancelled before Close is called.
func (c *IMAPClient) Dial(ctx context.Context) (*Session, error) {
	addr := c.cfg.Addr()
	timeout := c.cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperr.Connectivity("imap.dial", fmt.Errorf("connecting to %s: %w", addr, err))
	}
	conn = &deadlineConn{Conn: conn, timeout: timeout}

	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: !c.cfg.TLSVerify,
	}
	opts := &imapclient.Options{TLSConfig: tlsConfig}

	var client *imapclient.Client
	switch c.cfg.Security {
	case "tls":
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, apperr.Connectivity("imap.dial", fmt.Errorf("tls handshake with %s: %w", addr, err))
		}
		client = imapclient.New(tlsConn, opts)
	case "none":
		client = imapclient.New(conn, opts)
	default:
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			conn.Close()
			return nil, apperr.Connectivity("imap.dial", fmt.Errorf("starttls with %s: %w", addr, err))
		}
	}

	if err := client.Login(c.cfg.Username, c.password).Wait(); err != nil {
		_ = client.Close()
		if isStatusError(err) {
			return nil, apperr.Wrap(apperr.KindConnectivity, "imap.login", &source.AuthError{
				Server:  addr,
				Message: fmt.Sprintf("authentication failed for %s: %v", c.cfg.Username, err),
			}, "login rejected")
		}
		return nil, apperr.Connectivity("imap.login", err)
	}

	s := &Session{client: client}
	s.stop = context.AfterFunc(ctx, func() { _ = client.Close() })
	return s, nil
}

// Select opens mailbox read-only and returns its UIDVALIDITY.
func (s *Session) Select(_ context.Context, mailbox string) (uint32, error) {
	data, err := s.client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, classify("imap.select "+mailbox, err)
	}
	return data.UIDValidity, nil
}

// SearchUIDs returns the UIDs matching c in ascending order.
func (s *Session) SearchUIDs(_ context.Context, c SearchCriteria) ([]uint32, error) {
	criteria := &imap.SearchCriteria{Since: c.Since}
	if c.Unseen {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, classify("imap.search", err)
	}

	all := data.AllUIDs()
	uids := make([]uint32, len(all))
	for i, uid := range all {
		uids[i] = uint32(uid)
	}
	slices.Sort(uids)
	return uids, nil
}

// FetchFlags returns the flag state of each UID that still exists.
func (s *Session) FetchFlags(_ context.Context, uids []uint32) (map[uint32]model.Flags, error) {
	out := make(map[uint32]model.Flags, len(uids))
	if len(uids) == 0 {
		return out, nil
	}

	bufs, err := s.client.Fetch(uidSet(uids...), &imap.FetchOptions{
		UID:   true,
		Flags: true,
	}).Collect()
	if err != nil {
		return nil, classify("imap.fetch flags", err)
	}

	for _, buf := range bufs {
		out[uint32(buf.UID)] = flagsFrom(buf.Flags)
	}
	return out, nil
}

// FetchMessage fetches flags, internal date and the full source of one
// message without setting \Seen.
func (s *Session) FetchMessage(_ context.Context, uid uint32) (*RawMessage, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}

	bufs, err := s.client.Fetch(uidSet(uid), &imap.FetchOptions{
		UID:          true,
		Flags:        true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, classify(fmt.Sprintf("imap.fetch uid %d", uid), err)
	}
	if len(bufs) == 0 {
		return nil, apperr.NotFoundf("imap.fetch", "message uid %d not found", uid)
	}

	buf := bufs[0]
	return &RawMessage{
		UID:          uint32(buf.UID),
		Flags:        flagsFrom(buf.Flags),
		InternalDate: buf.InternalDate,
		Raw:          buf.FindBodySection(bodySection),
	}, nil
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	if s.stop != nil {
		s.stop()
	}
	_ = s.client.Logout().Wait()
	return s.client.Close()
}

func uidSet(uids ...uint32) imap.UIDSet {
	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}
	return imap.UIDSetNum(set...)
}

// flagsFrom maps IMAP system flags onto the tracked flag state.
func flagsFrom(flags []imap.Flag) model.Flags {
	f := model.Flags{Unread: true}
	for _, flag := range flags {
		switch flag {
		case imap.FlagSeen:
			f.Unread = false
		case imap.FlagAnswered:
			f.Answered = true
		case imap.FlagFlagged:
			f.Starred = true
		}
	}
	return f
}

// classify separates server status responses, which concern a single
// command, from transport failures, which poison the session.
func classify(op string, err error) error {
	if isStatusError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.Connectivity(op, err)
}

func isStatusError(err error) bool {
	var statusErr *imap.Error
	return errors.As(err, &statusErr)
}

// deadlineConn refreshes the read and write deadlines before every I/O
// so a stalled server fails the session instead of hanging it.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
