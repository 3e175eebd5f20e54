package chainid

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		wantNS  string
		wantRef string
	}{
		{"evm mainnet", "eip155:1", false, "eip155", "1"},
		{"solana", "solana:mainnet-beta", false, "solana", "mainnet-beta"},
		{"missing colon", "eip155-1", true, "", ""},
		{"empty reference", "eip155:", true, "", ""},
		{"empty namespace", ":1", true, "", ""},
		{"bad chars", "eip155:1;drop", true, "", ""},
		{"extra colon in reference is invalid", "eip155:1:2", true, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Namespace != tc.wantNS || got.Reference != tc.wantRef {
				t.Fatalf("got %+v, want ns=%s ref=%s", got, tc.wantNS, tc.wantRef)
			}
		})
	}
}

func TestChainID_String(t *testing.T) {
	c := ChainID{Namespace: "eip155", Reference: "1"}
	if c.String() != "eip155:1" {
		t.Fatalf("got %s", c.String())
	}
}
