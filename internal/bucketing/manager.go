package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// DefaultUserBuckets is the partition fan-out for the users table.
// Changing it rewrites every partition key, so treat it as fixed.
const DefaultUserBuckets = 128

type BucketingManager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewBucketingManager(userBuckets int) *BucketingManager {
	if userBuckets <= 0 {
		userBuckets = DefaultUserBuckets
	}

	bm := &BucketingManager{
		userBuckets: userBuckets,
	}

	// Pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetUserBucket returns a consistent bucket for a user ID (0 to userBuckets-1)
func (bm *BucketingManager) GetUserBucket(userID string) int {
	return int(bm.getHash(userID) % uint64(bm.userBuckets))
}

// GetDateBucket returns the UTC date bucket used for event partitioning
func (bm *BucketingManager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

// GetUserBuckets returns the configured bucket count
func (bm *BucketingManager) GetUserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
