package interceptors

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"gateway/pkg/audit"
	"gateway/pkg/logger"
)

// AuditConfig tunes the audit interceptor; ExcludeMethods drops noisy
// procedures like health probes.
type AuditConfig struct {
	ServiceName    string
	ExcludeMethods map[string]bool
	Logger         audit.Logger
}

// callerIdentity is what the audit entry records about who called.
type callerIdentity struct {
	clientIP  string
	userID    string
	username  string
	requestID string
}

// identityFromContext reads the caller identity out of grpc metadata,
// falling back to the peer address for the IP.
func identityFromContext(ctx context.Context) callerIdentity {
	id := callerIdentity{clientIP: "unknown"}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		first := func(key string) string {
			if vals := md.Get(key); len(vals) > 0 {
				return vals[0]
			}
			return ""
		}
		if ip := first("x-forwarded-for"); ip != "" {
			id.clientIP = ip
		} else if ip := first("x-real-ip"); ip != "" {
			id.clientIP = ip
		}
		id.userID = first("x-user-id")
		id.username = first("x-username")
		id.requestID = first("x-request-id")
	}

	if id.clientIP == "unknown" {
		if p, ok := peer.FromContext(ctx); ok {
			id.clientIP = p.Addr.String()
		}
	}
	return id
}

// buildEntry assembles the audit record for one finished RPC.
func buildEntry(cfg *AuditConfig, fullMethod string, action audit.Action, id callerIdentity, started time.Time, err error) *audit.Entry {
	b := audit.NewEntry().
		Service(cfg.ServiceName).
		Method(fullMethod).
		Action(action).
		User(id.userID, id.username).
		Client(id.clientIP, "").
		RequestID(id.requestID).
		Duration(time.Since(started))

	if err != nil {
		st, _ := status.FromError(err)
		b.Outcome(audit.OutcomeFailure).Error(st.Code().String(), st.Message())
	} else {
		b.Outcome(audit.OutcomeSuccess)
	}
	return b.Build()
}

// emit writes the entry off the RPC's goroutine so a slow backend never
// delays the response.
func emit(l audit.Logger, entry *audit.Entry) {
	go func() {
		if err := l.Log(context.Background(), entry); err != nil {
			logger.Log.Warn("Failed to write audit log", "error", err)
		}
	}()
}

// AuditInterceptor records every non-excluded unary RPC on the internal
// surface.
func AuditInterceptor(cfg *AuditConfig) grpc.UnaryServerInterceptor {
	if cfg.Logger == nil {
		cfg.Logger = audit.Get()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.ExcludeMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		start := time.Now()
		id := identityFromContext(ctx)

		resp, err := handler(ctx, req)

		emit(cfg.Logger, buildEntry(cfg, info.FullMethod, methodToAction(info.FullMethod), id, start, err))
		return resp, err
	}
}

// StreamAuditInterceptor records stream establishment and teardown as a
// single READ entry.
func StreamAuditInterceptor(cfg *AuditConfig) grpc.StreamServerInterceptor {
	if cfg.Logger == nil {
		cfg.Logger = audit.Get()
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.ExcludeMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		start := time.Now()
		id := identityFromContext(ss.Context())

		err := handler(srv, ss)

		entry := buildEntry(cfg, info.FullMethod, audit.ActionRead, id, start, err)
		entry.Metadata["stream"] = true
		emit(cfg.Logger, entry)
		return err
	}
}

// methodToAction maps an RPC name onto the audit action vocabulary by
// keyword, first match wins.
func methodToAction(method string) audit.Action {
	switch {
	case contains(method, "Create") || contains(method, "Save") || contains(method, "Register"):
		return audit.ActionCreate
	case contains(method, "Get") || contains(method, "List") || contains(method, "Find"):
		return audit.ActionRead
	case contains(method, "Update") || contains(method, "Refresh"):
		return audit.ActionUpdate
	case contains(method, "Delete") || contains(method, "Remove"):
		return audit.ActionDelete
	case contains(method, "Login") || contains(method, "Token"):
		return audit.ActionLogin
	case contains(method, "Logout"):
		return audit.ActionLogout
	case contains(method, "Dispatch") || contains(method, "Forward"):
		return audit.ActionDispatch
	case contains(method, "Reload") || contains(method, "Pin"):
		return audit.ActionReload
	default:
		return audit.ActionRead
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
