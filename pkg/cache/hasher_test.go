package cache

import "testing"

func TestParamsHash(t *testing.T) {
	t.Run("same params produce same hash", func(t *testing.T) {
		h1 := ParamsHash([]any{"0x1", "latest"})
		h2 := ParamsHash([]any{"0x1", "latest"})
		if h1 != h2 {
			t.Errorf("same params should produce same hash: %v != %v", h1, h2)
		}
	})

	t.Run("different params produce different hashes", func(t *testing.T) {
		h1 := ParamsHash([]any{"0x1"})
		h2 := ParamsHash([]any{"0x2"})
		if h1 == h2 {
			t.Error("different params should produce different hashes")
		}
	})

	t.Run("nil params", func(t *testing.T) {
		h := ParamsHash(nil)
		if h == "" {
			t.Error("nil params should still hash to a stable value")
		}
	})
}

func TestBuildResponseCacheKey(t *testing.T) {
	key := BuildResponseCacheKey("eip155:1", "eth_chainId", []any{})
	if key == "" {
		t.Error("expected non-empty cache key")
	}

	key2 := BuildResponseCacheKey("eip155:1", "eth_chainId", []any{})
	if key != key2 {
		t.Errorf("same inputs should produce same key: %v != %v", key, key2)
	}

	other := BuildResponseCacheKey("eip155:137", "eth_chainId", []any{})
	if key == other {
		t.Error("different chain ids should produce different keys")
	}
}

func TestBuildProjectCacheKey(t *testing.T) {
	key := BuildProjectCacheKey("proj-1")
	if key != "project:proj-1" {
		t.Errorf("BuildProjectCacheKey() = %v, want project:proj-1", key)
	}
}

func TestBuildIdentityCacheKey(t *testing.T) {
	key := BuildIdentityCacheKey("eip155:1", "0xabc")
	if key != "identity:eip155:1:0xabc" {
		t.Errorf("BuildIdentityCacheKey() = %v, want identity:eip155:1:0xabc", key)
	}
}

func TestQuickHash(t *testing.T) {
	data := []byte("test data")
	hash := QuickHash(data)

	if len(hash) != 64 {
		t.Errorf("QuickHash length = %d, want 64", len(hash))
	}

	hash2 := QuickHash(data)
	if hash != hash2 {
		t.Error("same data should produce same hash")
	}
}

func TestShortHash(t *testing.T) {
	data := []byte("test data")
	hash := ShortHash(data)

	if len(hash) != 16 {
		t.Errorf("ShortHash length = %d, want 16", len(hash))
	}
}
