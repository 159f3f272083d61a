package types

import (
	"context"
	"fmt"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxTenantID  ContextKey = "ctx_tenant_id"
	CtxClientIP  ContextKey = "ctx_client_ip"
	CtxUserAgent ContextKey = "ctx_user_agent"

	// Default values
	DefaultTenantID = "00000000-0000-0000-0000-000000000000"
)

func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(CtxTenantID).(string); ok {
		return tenantID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(CtxClientIP).(string); ok {
		return ip
	}
	return ""
}

func GetUserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(CtxUserAgent).(string); ok {
		return ua
	}
	return ""
}

// SetTenantID sets the tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

// ValidateTenantContext validates that the required tenant context fields are present
func ValidateTenantContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}

	if GetTenantID(ctx) == "" {
		return fmt.Errorf("no tenant context found in context")
	}

	return nil
}
