package sync_test

import (
	"testing"

	"github.com/goliatone/go-metamodel/pkg/sync"
)

func TestRefIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		ref     sync.Ref
		want    string
		wantErr bool
	}{
		{name: "source and channel", ref: sync.Ref{Source: "crm", Channel: "orders"}, want: "crm/orders"},
		{name: "channel defaults", ref: sync.Ref{Source: "crm"}, want: "crm/default"},
		{name: "whitespace trimmed", ref: sync.Ref{Source: "  crm ", Channel: " orders "}, want: "crm/orders"},
		{name: "source required", ref: sync.Ref{Channel: "orders"}, wantErr: true},
		{name: "blank source rejected", ref: sync.Ref{Source: "   "}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ref.Identifier()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
