package gateway

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/gnu-battle/pkg/battledto"
)

const writeTimeout = 5 * time.Second

// wsSink serializes outbound frames onto one WebSocket. wsjson.Write는
// 고루틴 안전하지 않으므로 뮤텍스로 직렬화한다. 큐와 룸 엔진 양쪽에서
// 이벤트 싱크로 쓰인다.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) Send(ctx context.Context, env battledto.OutEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, writeTimeout)
		defer cancel()
	}
	return wsjson.Write(dctx, s.conn, env)
}
