package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "gatebot/pkg/logx"
)

type fakeSource struct {
	status string
	err    error
}

func (f fakeSource) ChatMemberStatus(context.Context, string, int64) (string, error) {
	return f.status, f.err
}

func TestOracleFailsClosed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		src   fakeSource
		group string
		want  bool
	}{
		{"member", fakeSource{status: "member"}, "@g", true},
		{"admin", fakeSource{status: "administrator"}, "@g", true},
		{"creator", fakeSource{status: "creator"}, "@g", true},
		{"left", fakeSource{status: "left"}, "@g", false},
		{"kicked", fakeSource{status: "kicked"}, "@g", false},
		{"restricted", fakeSource{status: "restricted"}, "@g", false},
		{"error", fakeSource{status: "member", err: errors.New("boom")}, "@g", false},
		{"no group", fakeSource{status: "member"}, "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := NewOracle(tc.src, time.Second, logx.Nop())
			if got := o.IsMember(context.Background(), 42, tc.group); got != tc.want {
				t.Fatalf("IsMember=%v want %v", got, tc.want)
			}
		})
	}
}
