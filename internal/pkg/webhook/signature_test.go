package webhook

import "testing"

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"payment_id":"p1","status":"paid"}`)
	sig := GenerateSignature(body, "secret")

	cases := []struct {
		name   string
		body   []byte
		sig    string
		secret string
		want   bool
	}{
		{"valid", body, sig, "secret", true},
		{"prefixed", body, "sha256=" + sig, "secret", true},
		{"tampered body", []byte(`{"payment_id":"p2","status":"paid"}`), sig, "secret", false},
		{"wrong secret", body, sig, "other", false},
		{"empty secret", body, sig, "", false},
		{"empty signature", body, "", "secret", false},
		{"not hex", body, "zz", "secret", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(tc.body, tc.sig, tc.secret); got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
}
