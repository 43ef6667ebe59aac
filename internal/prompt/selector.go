package prompt

import "virkum-respond/internal/domain"

// SelectMode выбирает режим генерации. Чистая и тотальная функция.
func SelectMode(hasInputEmail, misdirected bool) domain.Mode {
	switch {
	case !hasInputEmail:
		return domain.ModeColdOutreach
	case misdirected:
		return domain.ModeClarifyingReply
	default:
		return domain.ModeDirectReply
	}
}
