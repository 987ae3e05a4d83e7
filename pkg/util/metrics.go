package util

import "time"

// TimeOperation runs op and stores its duration in microseconds under key, also
// when op fails.
func TimeOperation(metrics map[string]interface{}, key string, op func() error) error {
	start := time.Now()
	err := op()
	metrics[key] = time.Since(start).Microseconds()
	return err
}
