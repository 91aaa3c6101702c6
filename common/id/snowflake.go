package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The server and worker use different node IDs so their IDs never collide.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
func New() int64 {
	return node.Generate().Int64()
}

// NewString returns a new ID in its base-10 string form, used for job and trace correlation.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}
