package audit

import "context"

// ClientInfo identifies who is acting and from where. HTTP middleware attaches
// it to the request context; background jobs and CLI commands leave it empty.
type ClientInfo struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type clientInfoKey struct{}

// WithClientInfo returns a copy of ctx carrying info.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFrom returns the ClientInfo attached to ctx, or the zero value.
func ClientInfoFrom(ctx context.Context) ClientInfo {
	if info, ok := ctx.Value(clientInfoKey{}).(ClientInfo); ok {
		return info
	}
	return ClientInfo{}
}

// WithUserID returns a copy of ctx whose ClientInfo names userID as the actor,
// keeping any IP address and user agent already attached.
func WithUserID(ctx context.Context, userID string) context.Context {
	info := ClientInfoFrom(ctx)
	info.UserID = userID
	return WithClientInfo(ctx, info)
}
