package registry

import (
	"testing"

	"gateway/pkg/config"
)

func seeds() []config.ProviderSeed {
	return []config.ProviderSeed{
		{ID: "alchemy", ChainFamily: "evm", Chains: []string{"eip155:1"}, Methods: []string{"*"}, Priority: "normal"},
		{ID: "infura", ChainFamily: "evm", Chains: []string{"eip155:1"}, Methods: []string{"*"}, Priority: "normal"},
		{ID: "quicknode-backup", ChainFamily: "evm", Chains: []string{"eip155:1"}, Methods: []string{"*"}, Priority: "backup"},
		{ID: "archive-node", ChainFamily: "evm", Chains: []string{"eip155:1"}, Methods: []string{"*"}, Priority: "normal", Archive: true},
		{ID: "solana-rpc", ChainFamily: "solana", Chains: []string{"solana:mainnet-beta"}, Methods: []string{"getBalance"}, Priority: "normal"},
	}
}

func TestResolve_OrdersNormalBeforeBackup(t *testing.T) {
	r := New(seeds())
	candidates := r.Resolve("eip155:1", "eth_chainId", false)

	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(candidates))
	}
	for _, c := range candidates[:3] {
		if c.Priority != PriorityNormal {
			t.Fatalf("expected normal candidates first, got %s at priority %d", c.ID, c.Priority)
		}
	}
	if candidates[3].ID != "quicknode-backup" {
		t.Fatalf("expected backup candidate last, got %s", candidates[3].ID)
	}
}

func TestResolve_UnknownChain(t *testing.T) {
	r := New(seeds())
	candidates := r.Resolve("eip155:999999", "eth_chainId", false)
	if len(candidates) != 0 {
		t.Fatalf("expected empty result for unknown chain, got %d", len(candidates))
	}
}

func TestResolve_MethodFiltering(t *testing.T) {
	r := New(seeds())
	candidates := r.Resolve("solana:mainnet-beta", "getTransaction", false)
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates for unsupported method, got %d", len(candidates))
	}
	candidates = r.Resolve("solana:mainnet-beta", "getBalance", false)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
}

func TestResolve_ArchiveRequirement(t *testing.T) {
	r := New(seeds())
	candidates := r.Resolve("eip155:1", "eth_chainId", true)
	if len(candidates) != 1 || candidates[0].ID != "archive-node" {
		t.Fatalf("expected only archive-node, got %+v", candidates)
	}
}

func TestReload_Atomic(t *testing.T) {
	r := New(seeds())
	if len(r.All()) != 5 {
		t.Fatalf("expected 5 providers")
	}

	r.Reload([]config.ProviderSeed{
		{ID: "new-provider", ChainFamily: "evm", Chains: []string{"eip155:1"}, Methods: []string{"*"}, Priority: "normal"},
	})

	if len(r.All()) != 1 {
		t.Fatalf("expected reload to replace providers entirely, got %d", len(r.All()))
	}
	if r.ByID("alchemy") != nil {
		t.Fatalf("expected old provider to be gone after reload")
	}
}

func TestByID(t *testing.T) {
	r := New(seeds())
	if r.ByID("alchemy") == nil {
		t.Fatalf("expected to find alchemy")
	}
	if r.ByID("nonexistent") != nil {
		t.Fatalf("expected nil for nonexistent provider")
	}
}
