// Package internal holds helpers shared by the client packages.
package internal

import "github.com/zeebo/xxh3"

// ShardOf maps a process variable name to one of n shards. The mapping is
// stable for a given n and moves few names when n grows.
func ShardOf(name string, n int) int {
	return JumpHash(xxh3.HashString(name), n)
}

// JumpHash is Google's "Jump" consistent hash (https://arxiv.org/abs/1406.2294),
// after github.com/dgryski/go-jump.
func JumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}

	var b int64 = -1
	var j int64

	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}

	return int(b)
}
