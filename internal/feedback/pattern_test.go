package feedback

import "testing"

func TestPatternKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "stopwords and punctuation stripped",
			in:   "How do I reset my password?",
			want: "reset_password",
		},
		{
			name: "case insensitive",
			in:   "RESET Password",
			want: "reset_password",
		},
		{
			name: "token cap",
			in:   "alpha beta gamma delta epsilon zeta eta theta iota kappa",
			want: "alpha_beta_gamma_delta_epsilon_zeta_eta_theta",
		},
		{
			name: "numbers kept",
			in:   "error 403 forbidden page",
			want: "error_403_forbidden_page",
		},
		{
			name: "only stopwords",
			in:   "can you please",
			want: "",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PatternKey(tt.in); got != tt.want {
				t.Errorf("PatternKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPatternKeyStableAcrossPhrasings(t *testing.T) {
	t.Parallel()

	a := PatternKey("How do I reset my password?")
	b := PatternKey("reset password")
	if a != b {
		t.Errorf("equivalent queries got different keys: %q vs %q", a, b)
	}
}
