package benchmark

import (
	"fmt"
	"testing"

	"gateway/pkg/cache"
)

func BenchmarkParamsHash(b *testing.B) {
	cases := []struct {
		name   string
		params any
	}{
		{"empty", []any{}},
		{"address", []any{"0x742d35cc6634c0532925a3b844bc454e4438f44e", "latest"}},
		{"filter_object", map[string]any{
			"fromBlock": "0x1",
			"toBlock":   "0x1000",
			"address":   "0x742d35cc6634c0532925a3b844bc454e4438f44e",
			"topics":    []any{"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		}},
	}

	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				cache.ParamsHash(tc.params)
			}
		})
	}
}

func BenchmarkBuildResponseCacheKey(b *testing.B) {
	params := []any{"0x742d35cc6634c0532925a3b844bc454e4438f44e", "latest"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.BuildResponseCacheKey("eip155:1", "eth_getBalance", params)
	}
}

func BenchmarkBuildProjectCacheKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		cache.BuildProjectCacheKey("proj-3f2a9c1d")
	}
}

func BenchmarkBuildIdentityCacheKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		cache.BuildIdentityCacheKey("eip155:1", "0x742d35cc6634c0532925a3b844bc454e4438f44e")
	}
}

func BenchmarkQuickHash(b *testing.B) {
	sizes := []int{64, 256, 1024, 4096, 16384}

	for _, size := range sizes {
		data := make([]byte, size)
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				cache.QuickHash(data)
			}
		})
	}
}

func BenchmarkShortHash(b *testing.B) {
	data := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.ShortHash(data)
	}
}
