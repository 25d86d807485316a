package server

import (
	"context"
	"encoding/json"
	"sync"

	"cex-matching/biz/engine"
	"cex-matching/biz/service"
	"cex-matching/conf"

	"github.com/cloudwego/hertz/pkg/app"
	hertzserver "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hertz-contrib/websocket"
	"github.com/segmentio/kafka-go"
)

const shardNum = 32

var upgrader = websocket.HertzUpgrader{
	CheckOrigin: func(ctx *app.RequestContext) bool {
		return true // 允许所有跨域 WebSocket 连接
	},
}

type SymbolShard struct {
	Mu     sync.RWMutex
	Subs   map[string]map[*websocket.Conn]struct{}
	MsgBuf map[string]chan []byte // 每个symbol的消息缓冲区
}

var symbolShards [shardNum]*SymbolShard

func init() {
	for i := 0; i < shardNum; i++ {
		symbolShards[i] = &SymbolShard{
			Subs:   make(map[string]map[*websocket.Conn]struct{}),
			MsgBuf: make(map[string]chan []byte),
		}
	}
}

// ensureSymbolDispatcher 启动symbol消息分发 goroutine
func ensureSymbolDispatcher(shard *SymbolShard, symbol string) {
	if _, ok := shard.MsgBuf[symbol]; ok {
		return
	}
	msgBuf := make(chan []byte, 4096)
	shard.MsgBuf[symbol] = msgBuf
	go func() {
		for msg := range msgBuf {
			shard.Mu.RLock()
			conns := shard.Subs[symbol]
			for conn := range conns {
				conn := conn
				err := engine.BroadcastPool.Submit(func() {
					if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						hlog.Warnf("广播写入失败，移除连接: %v, conn=%v", err, conn.RemoteAddr())
						cleanConnFromAllSymbols(conn)
						_ = conn.Close()
					}
				})
				if err != nil {
					hlog.Errorf("broadcastPool.Submit error: %v, conn: %v", err, conn.RemoteAddr())
				}
			}
			shard.Mu.RUnlock()
		}
		shard.Mu.Lock()
		delete(shard.MsgBuf, symbol)
		shard.Mu.Unlock()
	}()
}

func GetSymbolShard(symbol string) *SymbolShard {
	h := fnv32(symbol)
	return symbolShards[h%shardNum]
}

func fnv32(key string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}

// wsMessage 入站控制消息
type wsMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
	UserID string `json:"user_id"`
}

func parseAction(msg []byte) wsMessage {
	var m wsMessage
	_ = json.Unmarshal(msg, &m)
	return m
}

// cleanConnFromAllSymbols 清理连接所有symbol订阅
func cleanConnFromAllSymbols(c *websocket.Conn) {
	for i := 0; i < shardNum; i++ {
		shard := symbolShards[i]
		shard.Mu.Lock()
		for sym, conns := range shard.Subs {
			if conns != nil {
				if _, ok := conns[c]; ok {
					delete(conns, c)
					if len(conns) == 0 {
						delete(shard.Subs, sym)
					}
				}
			}
		}
		shard.Mu.Unlock()
	}
}

// Broadcast 广播消息到symbol订阅者
func Broadcast(symbol string, msg []byte) {
	shard := GetSymbolShard(symbol)
	shard.Mu.Lock()
	ensureSymbolDispatcher(shard, symbol)
	buf := shard.MsgBuf[symbol]
	shard.Mu.Unlock()
	if buf != nil {
		select {
		case buf <- msg:
		default:
			hlog.Warnf("symbol %s 消息缓冲区已满，消息转存Kafka", symbol)
			saveDroppedMessage(symbol, msg)
		}
	}
}

// saveDroppedMessage 丢弃的消息异步写入 Kafka，供离线补推
func saveDroppedMessage(symbol string, msg []byte) {
	go func() {
		topic := "dropped_" + symbol
		w := getDroppedKafkaWriter(topic)
		if w == nil {
			hlog.Errorf("failed to get dropped kafka writer for topic %s", topic)
			return
		}
		_ = w.WriteMessages(context.Background(), kafka.Message{Value: msg})
	}()
}

var droppedKafkaWriters sync.Map // map[topic]*kafka.Writer

func getDroppedKafkaWriter(topic string) *kafka.Writer {
	if w, ok := droppedKafkaWriters.Load(topic); ok {
		return w.(*kafka.Writer)
	}
	brokers := conf.GetConf().Kafka.Brokers
	w := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		Async: true,
	}
	droppedKafkaWriters.Store(topic, w)
	return w
}

var orderService *service.OrderService

// InjectOrderService 注入订单服务，WS下单走同一撮合入口
func InjectOrderService(s *service.OrderService) {
	orderService = s
}

// NewWebSocketServer WebSocket 服务端
// 支持 subscribe / unsubscribe / auth / SubmitOrder 四种 action
func NewWebSocketServer(addr string) *hertzserver.Hertz {
	h := hertzserver.Default(hertzserver.WithHostPorts(addr))
	h.NoHijackConnPool = true

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
			hlog.Infof("[WS] connection upgraded: %v", conn.RemoteAddr())
			var authedUser string
			defer func() {
				cleanConnFromAllSymbols(conn)
				if authedUser != "" {
					UnregisterUserConn(authedUser)
				}
				_ = conn.Close()
				hlog.Infof("[WS] connection closed: %v", conn.RemoteAddr())
			}()

			for {
				mt, msg, err := conn.ReadMessage()
				if err != nil {
					break
				}
				m := parseAction(msg)
				switch {
				case m.Action == "subscribe" && m.Symbol != "":
					shard := GetSymbolShard(m.Symbol)
					shard.Mu.Lock()
					if shard.Subs[m.Symbol] == nil {
						shard.Subs[m.Symbol] = make(map[*websocket.Conn]struct{})
					}
					shard.Subs[m.Symbol][conn] = struct{}{}
					ensureSymbolDispatcher(shard, m.Symbol)
					shard.Mu.Unlock()
					ack := []byte(`{"type":"subscription_ack","symbol":"` + m.Symbol + `"}`)
					_ = conn.WriteMessage(mt, ack)

				case m.Action == "unsubscribe" && m.Symbol != "":
					shard := GetSymbolShard(m.Symbol)
					shard.Mu.Lock()
					if conns, ok := shard.Subs[m.Symbol]; ok {
						delete(conns, conn)
						if len(conns) == 0 {
							delete(shard.Subs, m.Symbol)
						}
					}
					shard.Mu.Unlock()
					ack := []byte(`{"type":"unsubscription_ack","symbol":"` + m.Symbol + `"}`)
					_ = conn.WriteMessage(mt, ack)

				case m.Action == "auth" && m.UserID != "":
					// 订单回报单播需要先绑定用户
					authedUser = m.UserID
					RegisterUserConn(m.UserID, conn)
					ack := []byte(`{"type":"auth_ack","user_id":"` + m.UserID + `"}`)
					_ = conn.WriteMessage(mt, ack)

				case m.Action == "SubmitOrder":
					if orderService == nil {
						continue
					}
					var req service.SubmitOrderReq
					if err := json.Unmarshal(msg, &req); err != nil {
						hlog.Warnf("invalid SubmitOrder: %v", err)
						continue
					}
					result, err := orderService.Submit(ctx, &req)
					if err != nil {
						resp, _ := json.Marshal(map[string]interface{}{"type": "order_error", "error": err.Error()})
						_ = conn.WriteMessage(mt, resp)
						continue
					}
					resp, _ := json.Marshal(map[string]interface{}{"type": "order_ack", "result": result})
					_ = conn.WriteMessage(mt, resp)
				}
			}
		})
		if err != nil {
			hlog.Errorf("upgrade error: %v", err)
		}
	})

	return h
}

// 用户ID到连接的映射
var userConnMap sync.Map // map[userID]*websocket.Conn

// RegisterUserConn 注册用户和连接的关系
func RegisterUserConn(userID string, conn *websocket.Conn) {
	userConnMap.Store(userID, conn)
}

// UnregisterUserConn 断开连接时清理
func UnregisterUserConn(userID string) {
	userConnMap.Delete(userID)
}

// Unicast 单播消息到指定 userID
func Unicast(userID string, msg []byte) {
	if v, ok := userConnMap.Load(userID); ok {
		if conn, ok := v.(*websocket.Conn); ok {
			_ = conn.WriteMessage(websocket.TextMessage, msg)
		}
	}
}
