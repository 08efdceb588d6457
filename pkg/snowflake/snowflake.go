// Package snowflake generates time-ordered message ids that are unique within
// one relay process.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

var ErrNodeRange = errors.New("node number must be between 0 and 1023")

// ID is a 63-bit snowflake: milliseconds since epoch, node, sequence.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Time returns the millisecond timestamp embedded in the id.
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timeShift) + epoch)
}

type Node struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrNodeRange
	}
	return &Node{node: node, now: time.Now}, nil
}

// MustNode is NewNode for node ids known to be in range. It panics otherwise.
func MustNode(node int64) *Node {
	n, err := NewNode(node)
	if err != nil {
		panic(err)
	}
	return n
}

// Generate returns the next id. Within one millisecond up to 4096 ids are
// issued; past that it waits for the clock to move on.
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().UnixMilli()
	if now < n.last {
		// clock went backwards, stay on the last issued millisecond
		now = n.last
	}

	if now == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.last {
				now = n.now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.last = now

	return ID(((now - epoch) << timeShift) | (n.node << nodeShift) | n.step)
}

// NewID satisfies the relay id generator.
func (n *Node) NewID() string {
	return n.Generate().String()
}
