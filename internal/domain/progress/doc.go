// Package progress содержит доменную модель прогресса обучения пользователя.
//
// Это ядро сервиса: движок правил, который по событиям активности
// (просмотр видео, прогресс курса или учебного маршрута) вычисляет
// опыт, уровень, серию дней и разблокированные достижения.
//
//   - Сущности: Record (прогресс пользователя), Unlock (полученное достижение)
//   - Каталог достижений: Catalog, Definition, Evaluate
//   - Эффекты мутаций: Effect, Notice
//   - Интерфейсы: Repository, UnlockRepository, IdentityProvider, Notifier
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости: только стандартная библиотека и pkg/timeutil
//  2. Чистые функции: методы Record не делают I/O и не читают часы,
//     текущее время и часовой пояс передаются явно
//  3. Каждая мутация возвращает упорядоченный список эффектов, из которых
//     слой приложения строит уведомления и доменные события
//
// # Пример
//
//	rec := progress.NewRecord()
//	effects := rec.UpdateCourseProgress("go-basics", 50, 10, now, loc)
//	// rec.Experience == 2, rec.CurrentStreak == 1
//	for _, e := range effects {
//	    if n, ok := e.Notice(); ok {
//	        notifier.Show(ctx, userID, n.Message, n.Kind)
//	    }
//	}
package progress
