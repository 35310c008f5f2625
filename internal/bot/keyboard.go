package bot

import "housebot/server/internal/models"

// Reply keyboard buttons. Their texts double as commands.
const (
	ButtonCoordinates  = "Ввести координаты"
	ButtonAddress      = "Ввести адрес"
	ButtonLocation     = "Отправить локацию"
	ButtonCompare      = "Сравнить дома"
	ButtonHistory      = "Мои запросы"
	ButtonTop          = "Топ-10"
	ButtonDistribution = "Распределение"
	ButtonAboutRating  = "О рейтинге"
	ButtonAbout        = "О нас"
	ButtonCancel       = "Отмена"
)

// MainKeyboard is the persistent menu shown after /start.
func MainKeyboard() models.ReplyKeyboardMarkup {
	return models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: ButtonCoordinates}, {Text: ButtonAddress}},
			{{Text: ButtonLocation, RequestLocation: true}},
			{{Text: ButtonCompare}, {Text: ButtonHistory}},
			{{Text: ButtonTop}, {Text: ButtonDistribution}},
			{{Text: ButtonAboutRating}, {Text: ButtonAbout}},
		},
		ResizeKeyboard: true,
	}
}
