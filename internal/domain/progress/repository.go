package progress

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища прогресса. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит записи прогресса по id пользователя.
type Repository interface {
	// FindRecord возвращает копию записи пользователя.
	// Возвращает shared.ErrRecordNotFound, если записи нет.
	FindRecord(ctx context.Context, userID string) (*Record, error)

	// SaveRecord сохраняет запись целиком (write-through).
	// При ошибке ранее сохранённое состояние не меняется.
	SaveRecord(ctx context.Context, userID string, record *Record) error

	// ListUserIDs возвращает id всех пользователей с записями.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// AtomicUpdater - хранилище, которое меняет запись под собственной
// блокировкой, общей для всех экземпляров сервиса.
type AtomicUpdater interface {
	// UpdateRecord загружает запись, вызывает fn и сохраняет результат
	// в одной транзакции. Если записи нет, fn получает nil.
	// fn возвращает nil, когда сохранять нечего; fn может быть вызвана
	// повторно.
	UpdateRecord(ctx context.Context, userID string, fn func(current *Record) (*Record, error)) error
}

// UnlockRepository хранит журнал полученных достижений.
type UnlockRepository interface {
	// ListUnlocks возвращает достижения пользователя в порядке получения.
	ListUnlocks(ctx context.Context, userID string) ([]Unlock, error)

	// AppendUnlock добавляет запись.
	// Возвращает shared.ErrAlreadyUnlocked для повторной пары (userId, achievementId).
	AppendUnlock(ctx context.Context, unlock Unlock) error
}

// Store объединяет оба хранилища.
type Store interface {
	Repository
	UnlockRepository
}
