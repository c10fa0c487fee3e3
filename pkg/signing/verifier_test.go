package signing

import "testing"

func TestRegistryDispatchesByChainTag(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEthereumVerifier())
	r.Register(NewCometBFTVerifier())

	if _, ok := r.Get("ethereum"); !ok {
		t.Fatal("expected ethereum verifier registered")
	}
	if _, ok := r.Get("cosmos"); !ok {
		t.Fatal("expected cosmos verifier registered")
	}
	if _, ok := r.Get("unknown-chain"); ok {
		t.Fatal("expected no verifier for unregistered chain")
	}
}

func TestVerifyUnregisteredChainIsError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Verify("unknown-chain", "0xabc", []byte("payload"), "0xsig"); err == nil {
		t.Fatal("expected error for unregistered chain tag")
	}
}

func TestPlaceholderVerifiersFailClosed(t *testing.T) {
	tz := NewTezosPlaceholderVerifier()
	if ok, err := tz.Verify("sender", []byte("payload"), "sig"); ok || err == nil {
		t.Fatalf("expected tezos verifier to fail closed, got ok=%v err=%v", ok, err)
	}

	nuls := NewNulsPlaceholderVerifier()
	if ok, err := nuls.Verify("sender", []byte("payload"), "sig"); ok || err == nil {
		t.Fatalf("expected nuls verifier to fail closed, got ok=%v err=%v", ok, err)
	}
}

func TestGlobalRegistryHasAllChainTags(t *testing.T) {
	reg := GlobalRegistry()
	for _, tag := range []string{"ethereum", "cosmos", "tezos", "nuls2"} {
		if _, ok := reg.Get(tag); !ok {
			t.Fatalf("expected global registry to have verifier for %q", tag)
		}
	}
}
