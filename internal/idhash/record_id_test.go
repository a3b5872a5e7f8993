package idhash

import "testing"

func TestComputeIdentityID(t *testing.T) {
	got := ComputeIdentityID("9xQeWvG816bUx9EPf2Tv67DLXQcDjxYxEYcc3cEXsdD3", 1704067200000)

	if len(got) != 64 {
		t.Errorf("ComputeIdentityID() length = %d, want 64", len(got))
	}

	// Verify determinism: same inputs should produce same output
	got2 := ComputeIdentityID("9xQeWvG816bUx9EPf2Tv67DLXQcDjxYxEYcc3cEXsdD3", 1704067200000)
	if got != got2 {
		t.Errorf("ComputeIdentityID() not deterministic: %s != %s", got, got2)
	}

	// Different address should produce different hash
	diff := ComputeIdentityID("otherAddress", 1704067200000)
	if got == diff {
		t.Error("Different address should produce different hash")
	}

	// Different timestamp should produce different hash
	diff = ComputeIdentityID("9xQeWvG816bUx9EPf2Tv67DLXQcDjxYxEYcc3cEXsdD3", 1704067200001)
	if got == diff {
		t.Error("Different timestamp should produce different hash")
	}
}

func TestComputePositionID(t *testing.T) {
	base := ComputePositionID("pool1", -100, 100, "0xsalt", "chain")

	if len(base) != 64 {
		t.Errorf("ComputePositionID() length = %d, want 64", len(base))
	}

	// Same key, different source namespace must produce distinct ids
	local := ComputePositionID("pool1", -100, 100, "0xsalt", "local")
	if base == local {
		t.Error("Different source should produce different hash")
	}

	// Different ticks should produce different hash
	diffTick := ComputePositionID("pool1", -200, 100, "0xsalt", "chain")
	if base == diffTick {
		t.Error("Different tick_lower should produce different hash")
	}

	// Different salt should produce different hash
	diffSalt := ComputePositionID("pool1", -100, 100, "0xother", "chain")
	if base == diffSalt {
		t.Error("Different salt should produce different hash")
	}
}

func TestComputeTransactionID(t *testing.T) {
	base := ComputeTransactionID("0xabc", "0xsubmitter", 1704067200000)

	if len(base) != 64 {
		t.Errorf("ComputeTransactionID() length = %d, want 64", len(base))
	}

	got2 := ComputeTransactionID("0xabc", "0xsubmitter", 1704067200000)
	if base != got2 {
		t.Errorf("ComputeTransactionID() not deterministic: %s != %s", base, got2)
	}

	diff := ComputeTransactionID("0xdef", "0xsubmitter", 1704067200000)
	if base == diff {
		t.Error("Different hash should produce different id")
	}
}
