package client

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "otii-client/errors"
	"otii-client/protocol"
	"otii-client/servertest"
	"otii-client/transport"
)

func startClient(t *testing.T, srv *servertest.Server, opts ...Option) *Client {
	t.Helper()
	conn, _, err := transport.Dial(srv.Addr(), 0)
	require.NoError(t, err)
	c := New(conn, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSendRoundTrip(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Reply("otii_get_device_id", func(data map[string]any) (any, error) {
		assert.Equal(t, "Arc", data["device_name"])
		return map[string]any{"device_id": "abc123"}, nil
	})

	c := startClient(t, srv)
	payload, err := c.Send("otii_get_device_id", map[string]any{"device_name": "Arc"})
	require.NoError(t, err)

	var resp struct {
		DeviceID string `json:"device_id"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, "abc123", resp.DeviceID)
}

func TestTransactionIDsIncrease(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Reply("ping", func(map[string]any) (any, error) { return nil, nil })

	c := startClient(t, srv)
	for i := 0; i < 3; i++ {
		_, err := c.Send("ping", nil)
		require.NoError(t, err)
	}

	reqs := srv.RequestsFor("ping")
	require.Len(t, reqs, 3)
	prev := 0
	for _, req := range reqs {
		id, err := strconv.Atoi(req.TransID)
		require.NoError(t, err)
		assert.Greater(t, id, prev, "transaction ids must be strictly increasing")
		prev = id
	}
}

func TestOutOfBandMessagesRouted(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Handle("project_save", func(req *protocol.Request) []any {
		return []any{
			servertest.Progress("project_save", 50),
			servertest.Info("disk space low", nil),
			servertest.Progress("project_save", 100),
			servertest.OK(req, map[string]any{"filename": "a.otii"}),
		}
	})

	var progress []float64
	var infos []string
	c := startClient(t, srv,
		WithProgressHandler(func(p *protocol.Progress) { progress = append(progress, p.Value) }),
		WithInformationHandler(func(i *protocol.Information) { infos = append(infos, i.Info) }),
	)

	_, err = c.Send("project_save", nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 100}, progress)
	assert.Equal(t, []string{"disk space low"}, infos)
}

func TestCorrelationMismatchFailsCall(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Handle("ping", func(req *protocol.Request) []any {
		return []any{map[string]any{
			"type":     "response",
			"trans_id": "999",
			"cmd":      req.Cmd,
			"data":     map[string]any{},
		}}
	})

	c := startClient(t, srv)
	_, err = c.Send("ping", nil)
	assert.ErrorIs(t, err, oerrors.ErrCorrelationMismatch)
}

func TestErrorReplyBecomesRemoteError(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Handle("arc_set_main", func(req *protocol.Request) []any {
		return []any{servertest.Error(req, oerrors.CodeDeviceNotConnected, map[string]any{"device_id": "abc123"})}
	})

	c := startClient(t, srv)
	_, err = c.Send("arc_set_main", map[string]any{"device_id": "abc123", "enable": true})
	require.Error(t, err)
	re, ok := oerrors.AsRemote(err)
	require.True(t, ok, "expected a *errors.RemoteError, got %v", err)
	assert.Equal(t, oerrors.CodeDeviceNotConnected, re.Code)
	assert.Equal(t, "arc_set_main", re.Cmd)
	assert.Equal(t, "abc123", re.Detail["device_id"])
}

func TestUnaddressedErrorDeliveredToOutstandingCall(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	// A parse failure carries no transaction id.
	srv.Handle("ping", func(*protocol.Request) []any {
		return []any{map[string]any{
			"type":      "error",
			"errorcode": oerrors.CodeParseFailure,
			"data":      map[string]any{"parse_error": "unexpected token"},
		}}
	})

	c := startClient(t, srv)
	_, err = c.Send("ping", nil)
	require.Error(t, err)
	re, ok := oerrors.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, oerrors.CodeParseFailure, re.Code)
	assert.Equal(t, "ping", re.Cmd)
}

func TestSendTimeout(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Handle("slow", func(*protocol.Request) []any { return nil })

	c := startClient(t, srv)
	_, err = c.SendTimeout("slow", nil, 50*time.Millisecond)
	assert.ErrorIs(t, err, oerrors.ErrTimeout)
}

func TestFireAndForget(t *testing.T) {
	srv, err := servertest.Start()
	require.NoError(t, err)
	defer srv.Close()
	srv.Reply("ping", func(map[string]any) (any, error) { return nil, nil })

	c := startClient(t, srv)
	require.NoError(t, c.FireAndForget("otii_shutdown", nil))

	// The stream stays aligned for the next transactional call.
	_, err = c.Send("ping", nil)
	require.NoError(t, err)

	reqs := srv.RequestsFor("otii_shutdown")
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].TransID)
}
