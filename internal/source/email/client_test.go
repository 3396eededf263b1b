package email

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
	"github.com/nhle/inbox-companion/internal/source"
)

func TestFlagsFrom(t *testing.T) {
	assert.Equal(t, model.Flags{Unread: true}, flagsFrom(nil))
	assert.Equal(t,
		model.Flags{Unread: false, Answered: true, Starred: true},
		flagsFrom([]imap.Flag{imap.FlagSeen, imap.FlagAnswered, imap.FlagFlagged, "$Label1"}),
	)
}

func TestUIDSet(t *testing.T) {
	set := uidSet(3, 4, 9)
	assert.True(t, set.Contains(3))
	assert.True(t, set.Contains(9))
	assert.False(t, set.Contains(5))
}

func TestClassify(t *testing.T) {
	status := &imap.Error{Type: imap.StatusResponseTypeNo, Text: "no such message"}
	err := classify("imap.fetch", status)
	assert.False(t, apperr.IsConnectivity(err))
	assert.True(t, isStatusError(err))

	err = classify("imap.fetch", errors.New("connection reset by peer"))
	assert.True(t, apperr.IsConnectivity(err))
}

func TestDialUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	c := NewIMAPClient(model.IMAPConfig{Host: "127.0.0.1", Port: port, Security: "none", TimeoutSec: 2}, "pw")
	_, err = c.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	assert.False(t, source.IsAuthError(err))
}

// serveRejectingLogin answers one connection with a greeting, a minimal
// capability list and a NO response to LOGIN.
func serveRejectingLogin(t *testing.T, l net.Listener) {
	t.Helper()

	conn, err := l.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	fmt.Fprint(conn, "* OK IMAP4rev1 ready\r\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		tag, cmd := fields[0], strings.ToUpper(fields[1])
		switch cmd {
		case "CAPABILITY":
			fmt.Fprintf(conn, "* CAPABILITY IMAP4rev1 AUTH=PLAIN\r\n%s OK done\r\n", tag)
		case "LOGIN":
			fmt.Fprintf(conn, "%s NO [AUTHENTICATIONFAILED] invalid credentials\r\n", tag)
		case "LOGOUT":
			fmt.Fprintf(conn, "* BYE\r\n%s OK bye\r\n", tag)
			return
		default:
			fmt.Fprintf(conn, "%s BAD unexpected\r\n", tag)
		}
	}
}

func TestDialLoginRejected(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go serveRejectingLogin(t, l)

	port := l.Addr().(*net.TCPAddr).Port
	c := NewIMAPClient(model.IMAPConfig{
		Host: "127.0.0.1", Port: port, Username: "me", Security: "none", TimeoutSec: 5,
	}, "wrong")

	_, err = c.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	assert.True(t, source.IsAuthError(err))
}
