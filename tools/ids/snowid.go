package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
	tsMask   = 1<<41 - 1
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Node issues snowflake ids: 41 bits of milliseconds since 2020-01-01, 10 bits
// of node id and a 12 bit per-millisecond sequence.
type Node struct {
	mu     sync.Mutex
	nodeID int64
	seq    int64
	lastMS int64
	now    func() int64
}

func NewNode(nodeID int64) *Node {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Node{nodeID: nodeID, now: func() int64 { return time.Now().UnixMilli() }}
}

var (
	defaultNode *Node
	once        sync.Once
)

func node() *Node {
	once.Do(func() { defaultNode = NewNode(1) })
	return defaultNode
}

// SetNodeID changes the node id of the process-wide generator. Call it once at boot.
func SetNodeID(nodeID int64) {
	n := node()
	n.mu.Lock()
	defer n.mu.Unlock()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	n.nodeID = nodeID
}

func Generate() int64 { return node().Next() }

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		now := n.now()
		if now < n.lastMS {
			// clock moved backwards
			time.Sleep(time.Duration(n.lastMS-now) * time.Millisecond)
			continue
		}
		if now == n.lastMS {
			n.seq = (n.seq + 1) & seqMask
			if n.seq == 0 {
				for now <= n.lastMS {
					now = n.now()
				}
			}
		} else {
			n.seq = 0
		}
		n.lastMS = now

		ts := (now - epoch) & tsMask
		return ts<<(nodeBits+seqBits) | n.nodeID<<seqBits | n.seq
	}
}
