package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

const (
	HubPattern = "/ws" // websocket推送地址

	MessageTrafficUpdate = "traffic_update" // 服务端推送的快照
	MessageRequestUpdate = "request_update" // 客户端请求立即推送
	MessageClearData     = "clear_data"     // 客户端请求重置路口

	writeWait = 5 * time.Second
)

// Source 推送内容来源
type Source interface {
	Snapshots(ctx context.Context, ids ...int32) []*rpc.Snapshot
	Reset(ctx context.Context, junctionID int32) (*rpc.Snapshot, error)
}

// Frame 推送给仪表盘的消息
type Frame struct {
	Type      string          `json:"type"`
	Junctions []*rpc.Snapshot `json:"junctions,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Request 仪表盘发来的消息
type Request struct {
	Type        string  `json:"type"`
	JunctionID  *int32  `json:"junction_id,omitempty"`  // clear_data的目标路口，为空时重置全部路口
	JunctionIDs []int32 `json:"junction_ids,omitempty"` // request_update只推送这些路口，为空时推送全部
}

type unicast struct {
	conn *websocket.Conn
	data []byte
}

// Hub websocket推送中心
// 功能：以固定节奏向所有仪表盘连接推送全部路口的快照，新连接立即收到当前快照
// 说明：所有写操作都在Run协程中完成，每个连接同一时刻只有一个写者
type Hub struct {
	upgrader websocket.Upgrader
	source   Source

	clients   map[*websocket.Conn]bool
	count     atomic.Int32
	register  chan unicast
	send      chan unicast
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
}

// NewHub 创建推送中心，需要调用Run后才开始工作
func NewHub(source Source) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		source:    source,
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan unicast),
		send:      make(chan unicast, 16),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
	}
}

// Run 推送循环，ctx结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for conn := range h.clients {
			conn.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.count.Store(0)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-h.register:
			h.clients[r.conn] = true
			h.write(r.conn, r.data)
			h.count.Store(int32(len(h.clients)))
		case u := <-h.send:
			if h.clients[u.conn] {
				h.write(u.conn, u.data)
			}
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.count.Store(int32(len(h.clients)))
		case msg := <-h.broadcast:
			for conn := range h.clients {
				h.write(conn, msg)
			}
			h.count.Store(int32(len(h.clients)))
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warnf("failed to send frame to websocket client: %v", err)
		delete(h.clients, conn)
		conn.Close()
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Publish 向所有连接推送快照
// 说明：推送队列已满时丢弃本次推送，下一次推送会带上最新状态
func (h *Hub) Publish(snapshots []*rpc.Snapshot) {
	data, err := encode(Frame{Type: MessageTrafficUpdate, Junctions: snapshots})
	if err != nil {
		log.Errorf("failed to marshal frame for websocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("websocket broadcast queue is full, drop frame")
	}
}

// Handler 供sidecar注册的HTTP处理器
func (h *Hub) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return HubPattern, http.HandlerFunc(h.ServeHTTP)
}

// ServeHTTP 升级为websocket连接并处理仪表盘消息
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	ctx := context.WithoutCancel(r.Context())
	data, err := h.frame(ctx)
	if err != nil {
		log.Errorf("failed to marshal frame for websocket: %v", err)
		conn.Close()
		return
	}
	select {
	case h.register <- unicast{conn: conn, data: data}:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.remove <- conn:
			case <-h.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("websocket error: %v", err)
				}
				return
			}
			var req Request
			if err := json.Unmarshal(message, &req); err != nil {
				log.Debugf("ignore websocket message %q: %v", message, err)
				continue
			}
			h.handle(ctx, conn, req)
		}
	}()
}

func (h *Hub) handle(ctx context.Context, conn *websocket.Conn, req Request) {
	switch req.Type {
	case MessageRequestUpdate:
		if data, err := h.frame(ctx, req.JunctionIDs...); err == nil {
			h.sendTo(conn, data)
		}
	case MessageClearData:
		var ids []int32
		if req.JunctionID != nil {
			ids = []int32{*req.JunctionID}
		} else {
			for _, s := range h.source.Snapshots(ctx) {
				ids = append(ids, s.JunctionID)
			}
		}
		for _, id := range ids {
			if _, err := h.source.Reset(ctx, id); err != nil {
				if data, err := encode(Frame{Type: MessageClearData, Error: err.Error()}); err == nil {
					h.sendTo(conn, data)
				}
				return
			}
			log.Infof("junction %d: cleared by websocket client", id)
		}
		h.Publish(h.source.Snapshots(ctx))
	default:
		log.Debugf("ignore websocket message type %q", req.Type)
	}
}

func (h *Hub) sendTo(conn *websocket.Conn, data []byte) {
	select {
	case h.send <- unicast{conn: conn, data: data}:
	case <-h.done:
	}
}

func (h *Hub) frame(ctx context.Context, ids ...int32) ([]byte, error) {
	return encode(Frame{Type: MessageTrafficUpdate, Junctions: h.source.Snapshots(ctx, ids...)})
}

func encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
