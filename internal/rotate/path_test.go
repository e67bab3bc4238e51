package rotate

import "testing"

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"kv/engineering/v1/app", "kv/data/engineering/v1/app"},
		{"kv/data/engineering/v1/app", "kv/data/engineering/v1/app"},
		{"secret/team/app", "secret/data/team/app"},
		{"secret/data/team/app", "secret/data/team/app"},
		{"team/app", "kv/data/team/app"},
		{"/kv/team/app/", "kv/data/team/app"},
		{"data/team/app", "kv/data/team/app"},
		{"kvetch/team", "kv/data/kvetch/team"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	a := GenerateSecret(DefaultSecretLength)
	b := GenerateSecret(DefaultSecretLength)

	if len(a) != DefaultSecretLength || len(b) != DefaultSecretLength {
		t.Fatalf("wrong length: %d / %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("two generated secrets were identical")
	}
}
