package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Conn 包装 zk.Conn，关闭时同时停止事件日志
type Conn struct {
	*zk.Conn
}

// Connect 建立 ZooKeeper 会话，并在后台记录会话状态变化
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrapf(err, "connect zookeeper %v", servers)
	}
	go func() {
		for ev := range events {
			if ev.Type == zk.EventSession {
				log.Debug().Str("state", ev.State.String()).Msg("zookeeper session state")
			}
		}
	}()
	return &Conn{Conn: conn}, nil
}

// Close 实现 bootstrap 的关闭钩子签名
func (c *Conn) Close() error {
	c.Conn.Close()
	return nil
}
