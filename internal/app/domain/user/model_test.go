package user

import "testing"

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{"provider", RoleProvider, true},
		{"beneficiary", RoleBeneficiary, true},
		{"delivery", RoleDelivery, true},
		{"deliveryAgent", RoleDelivery, true},
		{"delivery_agent", RoleDelivery, true},
		{"admin", RoleAdmin, true},
		{"", "", false},
		{"Provider", "", false},
		{"driver", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeRole(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeRole(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPublicRole(t *testing.T) {
	if got := PublicRole(RoleDelivery); got != "deliveryAgent" {
		t.Errorf("PublicRole(delivery) = %q", got)
	}
	if got := PublicRole(RoleProvider); got != "provider" {
		t.Errorf("PublicRole(provider) = %q", got)
	}
}
