package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testTokens(t *testing.T) *HMACTokens {
	t.Helper()
	tokens, err := NewHMACTokens(testSecret)
	require.NoError(t, err)
	return tokens
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testTokens(t))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func dial(t *testing.T, srv *httptest.Server, owner string) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := testTokens(t).Issue(owner, time.Minute)
	require.NoError(t, err)
	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token="+token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	hello := readFrame(t, conn)
	require.Equal(t, TypeConnection, hello.Type)
	require.NotEmpty(t, hello.Message)
	assert.Equal(t, hello.Message, hello.ConnectionID)
	return conn, hello.Message
}

func readFrame(t *testing.T, conn *websocket.Conn) Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var n Notification
	require.NoError(t, wsjson.Read(ctx, conn, &n))
	return n
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

func TestHub_ResolveAndSend(t *testing.T) {
	hub, srv := startHub(t)
	conn, id := dial(t, srv, "userA")

	got, err := hub.ConnectionID(context.Background(), "userA")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	ch := NewChannel(ChannelConfig{Sender: hub})
	ch.Notify(context.Background(), got, TypeMessage, "Finished ingesting doc.pdf", LevelSuccess)

	n := readFrame(t, conn)
	assert.Equal(t, Notification{
		Source:       Source,
		Type:         TypeMessage,
		Message:      "Finished ingesting doc.pdf",
		ConnectionID: id,
		Level:        LevelSuccess,
	}, n)
}

func TestHub_Routes(t *testing.T) {
	_, srv := startHub(t)
	conn, id := dial(t, srv, "userA")

	writeFrame(t, conn, map[string]any{"action": "whoami"})
	n := readFrame(t, conn)
	assert.Equal(t, TypeConnection, n.Type)
	assert.Equal(t, id, n.Message)
	assert.Equal(t, HubSource, n.Source)

	writeFrame(t, conn, map[string]any{"action": "message", "message": "ping"})
	n = readFrame(t, conn)
	assert.Equal(t, TypeMessage, n.Type)
	assert.Equal(t, "ping", n.Message)

	writeFrame(t, conn, map[string]any{"action": "dance"})
	n = readFrame(t, conn)
	assert.Equal(t, TypeDefault, n.Type)
	assert.Equal(t, "default route hit", n.Message)
}

func TestHub_LatestSessionWinsAndDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	first, firstID := dial(t, srv, "userA")
	_, secondID := dial(t, srv, "userA")
	_, otherID := dial(t, srv, "userB")

	got, _ := hub.ConnectionID(context.Background(), "userA")
	assert.Equal(t, secondID, got)
	got, _ = hub.ConnectionID(context.Background(), "userB")
	assert.Equal(t, otherID, got)
	assert.Equal(t, 3, hub.Sessions())

	require.NoError(t, first.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return hub.Sessions() == 2 }, 5*time.Second, 10*time.Millisecond)

	err := hub.Send(context.Background(), firstID, Notification{Message: "late"})
	assert.ErrorIs(t, err, ErrConnectionGone)

	got, _ = hub.ConnectionID(context.Background(), "userA")
	assert.Equal(t, secondID, got)
}

func TestHub_UnknownOwnerHasNoConnection(t *testing.T) {
	hub, _ := startHub(t)

	got, err := hub.ConnectionID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHub_RequiresVerifiedOwner(t *testing.T) {
	hub, srv := startHub(t)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   "userA",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)

	for name, query := range map[string]string{
		"no token":         "",
		"self-named owner": "?owner=userA",
		"forged signature": "?token=" + forged,
		"garbage token":    "?token=not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/ws" + query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	got, err := hub.ConnectionID(context.Background(), "userA")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHub_OwnerComesFromToken(t *testing.T) {
	hub, srv := startHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := testTokens(t).Issue("userB", time.Minute)
	require.NoError(t, err)
	// The owner query parameter is ignored; the token names userB.
	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?owner=userA"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()
	hello := readFrame(t, conn)

	got, _ := hub.ConnectionID(context.Background(), "userB")
	assert.Equal(t, hello.Message, got)
	got, _ = hub.ConnectionID(context.Background(), "userA")
	assert.Empty(t, got)
}
