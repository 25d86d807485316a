package dal

import (
	"cex-matching/biz/dal/kafka"
	"cex-matching/biz/dal/pg"
	"cex-matching/biz/dal/redis"
)

func Init() {
	pg.Init()
	redis.Init()
	kafka.Init()
}
