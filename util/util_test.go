package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// 机器ID推导失败时实例为 nil，生成函数必须报错而不是解引用崩溃
func TestGenerateOrderID(t *testing.T) {
	first, err := GenerateOrderID()
	if err != nil {
		require.ErrorIs(t, err, ErrIDGeneratorUnavailable)
		return
	}
	require.NotEmpty(t, first)

	second, err := GenerateOrderID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestGenerateTradeID(t *testing.T) {
	id, err := GenerateTradeID("BTCUSDT")
	if err != nil {
		require.ErrorIs(t, err, ErrIDGeneratorUnavailable)
		return
	}
	require.True(t, strings.HasPrefix(id, "trade-BTCUSDT-"))
}
