package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique, time-sortable KSUID string.
// Bundle ids use it so audit rows sort by generation time.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDNode issues snowflake ids for audit rows.
type IDNode struct {
	node *snowflake.Node
}

// NewIDNode creates a snowflake node. nodeID must be within 0..1023.
func NewIDNode(nodeID int64) (*IDNode, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &IDNode{node: node}, nil
}

// Next returns the next snowflake id.
func (n *IDNode) Next() int64 {
	return n.node.Generate().Int64()
}
