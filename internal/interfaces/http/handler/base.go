package handler

import (
	"context"

	"fiction-ai-api/internal/domain/entity"
	"fiction-ai-api/internal/domain/repository"
	apperrors "fiction-ai-api/pkg/errors"
)

// loadBookState 加载书状态，不存在时返回 BOOK_NOT_FOUND
func loadBookState(ctx context.Context, store repository.Store, bookID string) (*entity.BookState, error) {
	state, err := store.LoadBookState(ctx, bookID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load book")
	}
	if state == nil {
		return nil, apperrors.New(apperrors.CodeBookNotFound, "book not found").
			WithDetails(map[string]any{"book_id": bookID})
	}
	return state, nil
}

// loadOutline 加载大纲，缺失时返回 OUTLINE_MISSING
func loadOutline(ctx context.Context, store repository.Store, bookID string) (*entity.Outline, error) {
	outline, err := store.LoadOutline(ctx, bookID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "failed to load outline")
	}
	if outline == nil || outline.Markdown == "" {
		return nil, apperrors.New(apperrors.CodeOutlineMissing,
			"book has no outline yet; generate one first").
			WithDetails(map[string]any{"book_id": bookID})
	}
	return outline, nil
}
