package utils

import (
	"context"
	"errors"
)

type rqIDKey struct{}
type userIDKey struct{}

func GetRequestIDFromCtx(ctx context.Context) string {
	rqID, ok := ctx.Value(rqIDKey{}).(string)
	if !ok {
		return ""
	}
	return rqID
}

func CtxWithRqID(ctx context.Context, rqID string) context.Context {
	return context.WithValue(ctx, rqIDKey{}, rqID)
}

func GetUserIDFromCtx(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey{}).(int64)
	if !ok {
		return 0, errors.New("user id not found in context")
	}
	return userID, nil
}

func CtxWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}
