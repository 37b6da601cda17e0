package progress

import "context"

// Identity - пользователь, полученный от внешнего провайдера.
// Email служит ключом записи прогресса.
type Identity struct {
	Email string
	Name  string
}

// IdentityProvider сообщает, кто сейчас работает с системой.
// Аутентификация реализуется вне этого сервиса.
type IdentityProvider interface {
	IsLoggedIn(ctx context.Context) bool
	CurrentUser(ctx context.Context) (Identity, bool)
}

// Notifier показывает пользователю уведомление.
type Notifier interface {
	Show(ctx context.Context, userID, message string, kind Kind) error
}
