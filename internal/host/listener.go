package host

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	keepAliveIdle     = 5 * time.Second
	keepAliveInterval = 1 * time.Second
	keepAliveCount    = 3
	socketBufferSize  = 32 * 1024
)

// listenTCP binds the data port on all interfaces. The listener
// persists across session cycles; only accepted conns are recreated.
func listenTCP(port uint16) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("host: listen tcp port %d: %w", port, err)
	}
	return ln, nil
}

// tuneConn applies the low-latency socket options to an accepted conn.
// TCP_NODELAY is the one that matters: Nagle buffers a 46-byte pose
// frame for up to 200 ms. Keepalive gives ~8 s dead-peer detection;
// small buffers keep queueing delay down.
func tuneConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tc.SetNoDelay(true); err != nil {
		log.Warn().Err(err).Msg("set TCP_NODELAY failed")
	}
	err := tc.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepAliveIdle,
		Interval: keepAliveInterval,
		Count:    keepAliveCount,
	})
	if err != nil {
		// Not every platform takes the full tuple; plain keepalive is
		// still worth having.
		if err := tc.SetKeepAlive(true); err != nil {
			log.Warn().Err(err).Msg("set SO_KEEPALIVE failed")
		}
	}
	if err := tc.SetReadBuffer(socketBufferSize); err != nil {
		log.Debug().Err(err).Msg("set SO_RCVBUF failed")
	}
	if err := tc.SetWriteBuffer(socketBufferSize); err != nil {
		log.Debug().Err(err).Msg("set SO_SNDBUF failed")
	}
}
