package util

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sony/sonyflake"
)

var (
	sonyFlake *sonyflake.Sonyflake
	once      sync.Once

	// ErrIDGeneratorUnavailable NewSonyflake 推导不出机器ID（无私网IP）时实例为 nil
	ErrIDGeneratorUnavailable = errors.New("sonyflake unavailable: machine id could not be derived")
)

// InitSonyFlake 初始化 Snowflake 实例
func InitSonyFlake() {
	once.Do(func() {
		sonyFlake = sonyflake.NewSonyflake(sonyflake.Settings{})
	})
}

// GenerateOrderID 生成唯一订单ID
func GenerateOrderID() (string, error) {
	if sonyFlake == nil {
		InitSonyFlake()
	}
	if sonyFlake == nil {
		return "", ErrIDGeneratorUnavailable
	}
	id, err := sonyFlake.NextID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", id), nil
}

// GenerateTradeID 生成唯一成交ID
func GenerateTradeID(symbol string) (string, error) {
	if sonyFlake == nil {
		InitSonyFlake()
	}
	if sonyFlake == nil {
		return "", ErrIDGeneratorUnavailable
	}
	id, err := sonyFlake.NextID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("trade-%s-%d", symbol, id), nil
}
