package tcpserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/link"
)

func TestServer_EchoLink(t *testing.T) {
	s := New(cfgpkg.TCPConfig{Addr: "127.0.0.1:0", WriteTimeout: time.Second, MaxConnections: 2, AcceptRate: 100}, nil)

	var mu sync.Mutex
	var got []byte
	var ids []string
	closed := make(chan string, 1)
	s.SetHandler(func(l link.Link) link.Callbacks {
		mu.Lock()
		ids = append(ids, l.ID())
		mu.Unlock()
		return link.Callbacks{
			OnData: func(p []byte) {
				mu.Lock()
				got = append(got, p...)
				mu.Unlock()
				// 回显
				_ = l.Write(p)
			},
			OnClose: func() { closed <- l.ID() },
		}
	})
	accepted := 0
	s.SetMetricsCallbacks(func() { accepted++ })
	require.NoError(t, s.Start())

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = c.Write([]byte{0x5A, 0xA5, 0x01})
	require.NoError(t, err)

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	echo := make([]byte, 3)
	_, err = c.Read(echo)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x5A, 0xA5, 0x01}, echo)
	assert.Equal(t, 1, s.ActiveConnections())

	_ = c.Close()
	select {
	case id := <-closed:
		assert.Contains(t, id, "tcp-1@")
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 1, accepted)
}

func TestServer_StartWithoutHandler(t *testing.T) {
	s := New(cfgpkg.TCPConfig{Addr: "127.0.0.1:0"}, nil)
	assert.Error(t, s.Start())
}
