// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	lockRoot = "/storefront_locks" // 所有分布式锁的根节点
)

// Locker 基于临时顺序节点实现跨实例的互斥锁
type Locker struct {
	conn *Conn
}

func NewLocker(conn *Conn) *Locker {
	return &Locker{conn: conn}
}

// Lock 阻塞直到拿到 key 对应的锁或 ctx 结束
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockPath := lockRoot + "/" + key
	if err := l.ensurePath(lockPath); err != nil {
		return nil, err
	}

	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, errors.Wrap(err, "create sequential node")
	}
	unlock := func() {
		if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
			log.Error().Err(err).Str("node", nodePath).Msg("failed to delete lock node")
		}
	}

	for {
		// 2. 获取所有子节点并按序号排序，受保护节点带有 GUID 前缀
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			unlock()
			return nil, errors.Wrap(err, "get children nodes")
		}
		sort.Slice(children, func(i, j int) bool {
			return sequence(children[i]) < sequence(children[j])
		})

		// 3. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(nodePath, lockPath+"/")
		prevIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex == -1 {
			if len(children) > 0 && children[0] == myNodeName {
				return unlock, nil
			}
			unlock()
			return nil, errors.Errorf("lock node %s disappeared", nodePath)
		}

		// 4. 不是最小节点，监听前一个节点
		exists, _, eventChan, err := l.conn.ExistsW(lockPath + "/" + children[prevIndex])
		if err != nil {
			unlock()
			return nil, errors.Wrap(err, "watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-ctx.Done():
			unlock()
			return nil, ctx.Err()
		}
	}
}

func (l *Locker) ensurePath(path string) error {
	for _, p := range []string{lockRoot, path} {
		_, err := l.conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "create lock node %s", p)
		}
	}
	return nil
}

// sequence 取出节点名末尾的 10 位序号
func sequence(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}
