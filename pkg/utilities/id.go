package utilities

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake IDs from a single node. The node must be
// shared: two nodes with the same ID produce colliding IDs within the same
// millisecond.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given snowflake node ID.
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// NewIDGeneratorFromEnv reads the node ID from SNOWFLAKE_NODE, defaulting to
// node 1 when unset or unparsable.
func NewIDGeneratorFromEnv() (*IDGenerator, error) {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		nodeID = 1
	}
	return NewIDGenerator(nodeID)
}

// Next returns a new unique ID.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
