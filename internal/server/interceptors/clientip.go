package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
)

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or the peer
// address. Values that do not parse as an IP are ignored; "" means unknown.
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			first, _, _ := strings.Cut(vals[0], ",")
			if ip := normalize(first); ip != "" {
				return ip
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if ip := normalize(vals[0]); ip != "" {
				return ip
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return normalize(p.Addr.String())
	}
	return ""
}

func normalize(s string) string {
	addr, ok := clientctx.ParseIP(s)
	if !ok {
		return ""
	}
	return addr.String()
}
