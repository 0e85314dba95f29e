package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/shopease/stock_locks"

// ErrLockTimeout 表示在等待期内未能获得锁。
var ErrLockTimeout = errors.New("timeout waiting for zookeeper lock")

// StockLock 是对单个商品库存记录的分布式互斥锁。
// 实现采用临时顺序节点 + 监听前驱节点的标准方案，避免惊群。
type StockLock struct {
	conn        *Conn
	path        string
	lockNode    string
	waitTimeout time.Duration
}

// NewStockLock 创建针对某个商品的锁实例。
func NewStockLock(conn *Conn, productID string, waitTimeout time.Duration) (*StockLock, error) {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	if err := conn.EnsurePath("/shopease"); err != nil {
		return nil, err
	}
	if err := conn.EnsurePath(lockRoot); err != nil {
		return nil, err
	}
	path := lockRoot + "/" + productID
	if err := conn.EnsurePath(path); err != nil {
		return nil, err
	}
	return &StockLock{conn: conn, path: path, waitTimeout: waitTimeout}, nil
}

// Lock 尝试获取锁，获取不到则阻塞等待，直到超时。
func (l *StockLock) Lock() error {
	// 临时顺序节点：节点名以序号结尾，子节点按名排序即按到达顺序排队
	nodePath, err := l.conn.Create(l.path+"/lock-", []byte{}, zk.FlagEphemeral|zk.FlagSequence, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "failed to create sequential lock node")
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(l.waitTimeout)
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "failed to list lock children")
		}
		sort.Strings(children)

		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 只监听紧邻的前驱节点
		prevIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			return errors.New("own lock node missing from children list")
		}
		prevNodePath := l.path + "/" + children[prevIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			return errors.Wrap(err, "failed to watch previous lock node")
		}
		if !exists {
			// 前驱节点在设置 watch 前已消失，重新竞争
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = l.Unlock()
			return ErrLockTimeout
		}
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			_ = l.Unlock()
			return ErrLockTimeout
		}
	}
}

// Unlock 释放锁。
func (l *StockLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock held")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "failed to delete lock node")
	}
	l.lockNode = ""
	return nil
}
