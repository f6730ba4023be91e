package queue

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Publisher publishes deletion jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, job DeletionJob) error
	Close() error
}

// MessageHandler handles a consumed queue message. A non-nil error leaves the
// message unacknowledged so the broker redelivers it.
type MessageHandler func(ctx context.Context, job DeletionJob) error

// Consumer consumes deletion jobs from a queue with manual acknowledgement.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	primaryQueuePrefix = "hard-delete"
	dlqQueueName       = "dlq.hard-delete"

	// DefaultPartitions shards the primary topic; one consumer per shard
	// keeps per-key FIFO order while shards stay concurrent.
	DefaultPartitions = 4

	// DefaultDeliveryLimit is the broker-side redelivery budget. The quorum
	// queue dead-letters a message once the limit is exceeded; application
	// code never publishes to the DLQ on the primary path.
	DefaultDeliveryLimit = 5
)

// PartitionQueueName returns the primary shard name, e.g. hard-delete.2.
func PartitionQueueName(partition int) string {
	return fmt.Sprintf("%s.%d", primaryQueuePrefix, partition)
}

// PartitionQueueNames returns all primary shards.
func PartitionQueueNames(partitions int) []string {
	if partitions < 1 {
		partitions = DefaultPartitions
	}
	names := make([]string, 0, partitions)
	for i := 0; i < partitions; i++ {
		names = append(names, PartitionQueueName(i))
	}
	return names
}

// DLQName returns the shared dead-letter queue name.
func DLQName() string {
	return dlqQueueName
}

// PartitionFor maps an idempotency key to its shard. Deterministic, so every
// retry of the same logical deletion lands on the same FIFO queue.
func PartitionFor(idempotencyKey string, partitions int) int {
	if partitions < 1 {
		partitions = DefaultPartitions
	}
	h := fnv.New32a()
	h.Write([]byte(idempotencyKey))
	return int(h.Sum32() % uint32(partitions))
}
