// Package transport 提供会话使用的 WebSocket 连接。
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"grid-bot-dashboard/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = time.Second

// Conn 是一条已建立的连接，ReadFrame 阻塞直到收到下一帧或连接失败
type Conn interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Dialer 建立到机器人端点的连接
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Options 控制握手超时与心跳
type Options struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
}

// DefaultOptions 返回默认心跳参数：pongWait 60s，ping 周期为其 9/10
func DefaultOptions() Options {
	pongWait := 60 * time.Second
	return Options{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     (pongWait * 9) / 10, // 必须小于 pongWait
		PongTimeout:      pongWait,
	}
}

// WebSocketDialer 基于 gorilla/websocket 的 Dialer 实现
type WebSocketDialer struct {
	opts   Options
	logger *zap.Logger
}

// NewWebSocketDialer 创建 Dialer，零值字段使用默认参数
func NewWebSocketDialer(opts Options, logger *zap.Logger) *WebSocketDialer {
	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = def.PongTimeout
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongTimeout {
		opts.PingInterval = (opts.PongTimeout * 9) / 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketDialer{opts: opts, logger: logger}
}

// Dial 连接 address 并启动心跳
func (d *WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.opts.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", models.ErrTransport, address, err)
	}

	c := &wsConn{
		ws:       ws,
		pongWait: d.opts.PongTimeout,
		done:     make(chan struct{}),
		logger:   d.logger,
	}
	// 设置Pong处理器来延长读取超时
	ws.SetReadDeadline(time.Now().Add(c.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	go c.pingLoop(d.opts.PingInterval)
	return c, nil
}

type wsConn struct {
	ws       *websocket.Conn
	pongWait time.Duration
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	// 任何数据帧也证明对端存活
	c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	return data, nil
}

// Close 发送关闭帧并关闭底层连接，可重复调用
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// pingLoop 定期发送Ping，直到连接关闭
func (c *wsConn) pingLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Sugar().Debugf("发送Ping失败: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}
