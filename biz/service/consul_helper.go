package service

import (
	"errors"
	"fmt"

	"github.com/hashicorp/consul/api"
)

// 撮合节点在 Consul 中的服务名，网关按该名称发现节点
const matchingServiceName = "matching_engine"

// ErrNoMatchingNode 没有节点声明负责该交易对
var ErrNoMatchingNode = errors.New("no matching node registered for symbol")

// ConsulHelper 封装 Consul 注册与发现
// 使用前请确保 Consul agent 已启动
type ConsulHelper struct {
	client *api.Client
}

// NewConsulHelper 创建 Consul 客户端
func NewConsulHelper(addr string) (*ConsulHelper, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	cli, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ConsulHelper{client: cli}, nil
}

// NewConsulHelperWithAddrs 支持多个 Consul 地址高可用
func NewConsulHelperWithAddrs(addrs []string) (*ConsulHelper, error) {
	var lastErr error
	for _, addr := range addrs {
		cfg := api.DefaultConfig()
		cfg.Address = addr
		cli, err := api.NewClient(cfg)
		if err != nil {
			lastErr = err
			continue
		}
		// 尝试健康检查
		if _, err := cli.Agent().Self(); err != nil {
			lastErr = err
			continue
		}
		return &ConsulHelper{client: cli}, nil
	}
	return nil, fmt.Errorf("all consul addresses failed: %v", lastErr)
}

// RegisterMatchingNode 注册撮合节点到 Consul
// nodeID: 唯一节点ID，symbols: 该节点负责的交易对列表，作为服务标签发布
func (c *ConsulHelper) RegisterMatchingNode(nodeID string, symbols []string, port int) error {
	if nodeID == "" || len(symbols) == 0 || port <= 0 {
		return fmt.Errorf("invalid node registration: node_id=%q, symbols=%d, port=%d", nodeID, len(symbols), port)
	}
	reg := &api.AgentServiceRegistration{
		ID:   nodeID,
		Name: matchingServiceName,
		Port: port,
		Tags: symbols,
		Check: &api.AgentServiceCheck{
			TCP:      fmt.Sprintf("127.0.0.1:%d", port),
			Interval: "10s",
			Timeout:  "2s",
		},
	}
	return c.client.Agent().ServiceRegister(reg)
}

// DeregisterMatchingNode 节点下线时注销
func (c *ConsulHelper) DeregisterMatchingNode(nodeID string) error {
	return c.client.Agent().ServiceDeregister(nodeID)
}

// DiscoverMatchingNode 查询负责 symbol 的撮合节点
// 无节点负责该交易对时返回 ErrNoMatchingNode
func (c *ConsulHelper) DiscoverMatchingNode(symbol string) ([]*api.AgentService, error) {
	services, err := c.client.Agent().Services()
	if err != nil {
		return nil, err
	}
	nodes := filterSymbolNodes(services, symbol)
	if len(nodes) == 0 {
		return nil, ErrNoMatchingNode
	}
	return nodes, nil
}

// filterSymbolNodes 在服务清单里筛出声明负责 symbol 的撮合节点
func filterSymbolNodes(services map[string]*api.AgentService, symbol string) []*api.AgentService {
	var result []*api.AgentService
	for _, svc := range services {
		if svc.Service != matchingServiceName {
			continue
		}
		for _, tag := range svc.Tags {
			if tag == symbol {
				result = append(result, svc)
				break
			}
		}
	}
	return result
}

// Client 返回 consul client
func (c *ConsulHelper) Client() *api.Client {
	return c.client
}
