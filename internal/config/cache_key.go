package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AssessmentSnapshotKey returns the cache key for a candidate's latest session snapshot
func (r *CacheKeyStruct) AssessmentSnapshotKey(userID, testID int) string {
	return fmt.Sprintf("assessment:candidate:%d:test:%d:snapshot", userID, testID)
}

// AssessmentEventsChannel returns the Redis PubSub channel name for a test's snapshot updates
func (r *CacheKeyStruct) AssessmentEventsChannel(testID int) string {
	return fmt.Sprintf("assessment:test:%d:events", testID)
}

var CacheKey = NewCacheKeyStruct()
