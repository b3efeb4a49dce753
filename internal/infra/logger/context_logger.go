package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	UsernameKey   ContextKey = "rag.user"
	CollectionKey ContextKey = "rag.collection"
	DocumentIDKey ContextKey = "rag.document.id"
	RequestIDKey  ContextKey = "rag.request.id"
)

// contextAttrs collects the request-scoped attributes carried in ctx.
// TraceContextHandler folds them into every record logged with a
// *Context call.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range []ContextKey{UsernameKey, CollectionKey, DocumentIDKey, RequestIDKey} {
		if value, ok := ctx.Value(key).(string); ok && value != "" {
			attrs = append(attrs, slog.String(string(key), value))
		}
	}
	return attrs
}

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UsernameKey, username)
}

func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, CollectionKey, collection)
}

func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
