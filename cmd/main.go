package main

import (
	"context"
	"io"
	"os"
	"strings"

	"cex-matching/biz/dal"
	"cex-matching/biz/dal/pg"
	"cex-matching/biz/engine"
	"cex-matching/biz/handler"
	"cex-matching/biz/service"
	"cex-matching/conf"
	"cex-matching/server"
	"cex-matching/util"

	hertzserver "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/gzip"
	"github.com/hertz-contrib/logger/accesslog"
	"github.com/hertz-contrib/pprof"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	_ = godotenv.Load()
	c := conf.GetConf()
	initLogger(c)

	dal.Init()
	util.InitSonyFlake()
	if err := engine.InitBroadcastPool(1024); err != nil {
		hlog.Fatalf("广播协程池初始化失败: %v", err)
	}

	orderRepo := pg.NewOrderRepo()
	tradeRepo := pg.NewTradeRepo()
	symbolService := service.NewSymbolService()
	tradeService := service.NewTradeServiceWithRepo(tradeRepo)
	klineService := service.NewKlineService()

	matcher := service.NewMatchEngine(
		c.MatchEngine.NodeID,
		orderRepo, tradeRepo,
		c.MatchEngine.TakerRate, c.MatchEngine.MakerRate,
	)
	if err := matcher.Recover(context.Background()); err != nil {
		hlog.Fatalf("盘口恢复失败: %v", err)
	}

	orderService := service.NewOrderService(matcher, orderRepo, symbolService)
	server.InjectOrderService(orderService)

	forwarder := service.NewEventForwarder(matcher, klineService, c.Kafka.Topics["trades"], server.Broadcast, server.Unicast)
	forwarder.Start()

	orderConsumer := service.NewOrderKafkaConsumer(orderService, c.Kafka.Topics["orders"])
	orderConsumer.Start()

	// Consul 节点注册与K线补偿任务，注册失败不阻塞单机启动
	if helper, err := service.NewConsulHelperWithAddrs(c.Registry.RegistryAddress); err != nil {
		hlog.Warnf("Consul连接失败，跳过节点注册: %v", err)
	} else {
		symbols := strings.Split(c.MatchEngine.MatchPairs, ",")
		if err := helper.RegisterMatchingNode(c.MatchEngine.NodeID, symbols, c.MatchEngine.MatchPort); err != nil {
			hlog.Warnf("撮合节点注册失败: %v", err)
		}
		service.StartKlineCompensateTask(helper.Client(), tradeService, klineService)
	}

	handler.Init(orderService, matcher, tradeService, klineService, symbolService)

	h := newHTTPServer(c)
	registerRoutes(h)
	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		orderConsumer.Shutdown()
		matcher.Shutdown()
		forwarder.Shutdown()
	})

	// WebSocket 行情服务单独端口
	ws := server.NewWebSocketServer(":" + c.Hertz.WsPort)
	go ws.Spin()

	hlog.Infof("撮合服务启动, node_id=%s, address=%s", c.MatchEngine.NodeID, c.Hertz.Address)
	h.Spin()
}

func initLogger(c *conf.Config) {
	hlog.SetLevel(conf.LogLevel())
	logFile := &lumberjack.Logger{
		Filename:   c.Hertz.LogFileName,
		MaxSize:    c.Hertz.LogMaxSize,
		MaxBackups: c.Hertz.LogMaxBackups,
		MaxAge:     c.Hertz.LogMaxAge,
	}
	hlog.SetOutput(io.MultiWriter(os.Stdout, logFile))
}

func newHTTPServer(c *conf.Config) *hertzserver.Hertz {
	h := hertzserver.New(hertzserver.WithHostPorts(c.Hertz.Address))
	h.Use(cors.Default())
	if c.Hertz.EnableGzip {
		h.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	if c.Hertz.EnableAccessLog {
		h.Use(accesslog.New())
	}
	if c.Hertz.EnablePprof {
		pprof.Register(h)
	}
	return h
}

func registerRoutes(h *hertzserver.Hertz) {
	api := h.Group("/api/v1")

	api.POST("/orders", handler.SubmitOrder)
	api.POST("/orders/cancel", handler.CancelOrder)
	api.GET("/orders/:id", handler.GetOrder)
	api.GET("/orders", handler.ListOrders)
	api.GET("/user/active_orders", handler.ListActiveOrders)

	api.GET("/depth", handler.GetDepth)
	api.GET("/trades", handler.GetTrades)
	api.GET("/ticker", handler.GetTicker)
	api.GET("/kline", handler.GetKline)

	api.GET("/symbols", handler.ListSymbols)
	api.POST("/symbols", handler.RegisterSymbol)

	h.GET("/health", handler.GetHealth)
}
