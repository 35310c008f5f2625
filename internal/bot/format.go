package bot

import (
	"fmt"
	"strings"

	"housebot/server/internal/geometry"
	"housebot/server/internal/models"
	"housebot/server/internal/render"
	"housebot/server/internal/telegram"

	"github.com/paulmach/orb"
)

const (
	MsgGreeting = "Привет! Я бот для оценки домов!\n" +
		"Введи координаты `<lat>, <lon>, <radius>` или адрес `адрес: ...`,\n" +
		"или нажми кнопки ниже."

	MsgAskCoordinates = "Введите координаты, например:\n" +
		"`55.7522, 37.6156, 1000`\n" +
		"где третий параметр - радиус (по умолчанию 1000)."

	MsgAskAddress = "Введите адрес в формате:\n" +
		"`адрес: Москва, Тверская, 12`"

	MsgAskLocation = "Нажмите кнопку «Отправить локацию» на клавиатуре, чтобы поделиться местоположением."

	MsgAboutRating = "Рейтинг рассчитывается на основе трех критериев:\n" +
		"• Социальная инфраструктура – наличие и качество инфраструктуры (школы, детсады, больницы, парки);\n" +
		"• Качество недвижимости – возраст, этажность, аварийность и другие характеристики дома;\n" +
		"• Транспортная доступность – близость к метро, остановкам, центру города и парковкам.\n" +
		"Максимум суммарно – 100 баллов."

	MsgAbout = "Мы проект по помощи в устойчивом развитии г. Москвы"

	MsgUnknown         = "Не понял вас.\nЧтобы начать заново, введите /start."
	MsgBadCoordinates  = "Неверный формат координат."
	MsgEmptyAddress    = "Пустой адрес."
	MsgGeocoding       = "Геокодирую адрес..."
	MsgGeocodeFailed   = "Не удалось определить координаты."
	MsgSearching       = "Ищу ближайший дом..."
	MsgBuildingMissing = "Дом не найден."
	MsgNoData          = "Нет данных."
	MsgNothingToCancel = "Нечего отменять."
	MsgUnavailable     = "Сервис временно недоступен, попробуйте позже."
)

// Labels stored in the history describe how each lookup was made.
func coordinatesLabel(lat, lon, radius float64) string {
	return fmt.Sprintf("coords: %s,%s, r=%s", geometry.FormatCoord(lat), geometry.FormatCoord(lon), geometry.FormatCoord(radius))
}

func addressLabel(addr string) string {
	return "адрес: " + addr
}

func locationLabel(lat, lon, radius float64) string {
	return fmt.Sprintf("локация: %s,%s, r=%s", geometry.FormatCoord(lat), geometry.FormatCoord(lon), geometry.FormatCoord(radius))
}

// FormatCard renders a lookup result as a Markdown message. query is the
// point the user asked about.
func FormatCard(report *models.BuildingReport, query orb.Point) string {
	b := report.Building
	lines := []string{
		fmt.Sprintf("🏠 *Дом:* %s (ID: %d)", telegram.EscapeMarkdown(b.Address), b.ID),
		fmt.Sprintf("⭐ *Рейтинг:* %s / 100", render.FormatValue(b.TotalScore, true)),
		"",
		"🏗 *Характеристики:*",
		"- Год постройки: " + optInt(b.BuildYear),
		"- Этажей: " + optInt(b.Floors),
		"- Аварийный: " + yesNo(b.IsEmergency),
		"- Общая площадь: " + optFloat(b.Area),
		"- Количество квартир: " + optInt(b.Apartments),
		"- Тип здания (ID): " + optInt(b.BuildingTypeID),
		"- Жилая площадь: " + optFloat(b.LivingArea),
		"- Нежилая площадь: " + optFloat(b.NonLivingArea),
		"- Культурное наследие: " + yesNo(b.IsCulturalHeritage),
		fmt.Sprintf("- Координаты в БД: %s, %s", optFloat(b.Latitude), optFloat(b.Longitude)),
		"",
		"📊 *Оценки по категориям:*",
		"- Соц: " + render.FormatValue(b.SocialScore, true),
		"- Качество: " + render.FormatValue(b.QualityScore, true),
		"- Транспорт: " + render.FormatValue(b.TransportScore, true),
		"",
		fmt.Sprintf("📍 Отклонение координат: %.2f м", geometry.DistanceMeters(query, b.Geometry)),
		"",
		fmt.Sprintf("Объекты в радиусе %d м:", int(report.Radius)),
	}

	if len(report.Amenities) == 0 {
		lines = append(lines, "Объекты не найдены.")
	}
	for _, a := range report.Amenities {
		lines = append(lines, fmt.Sprintf("- %s: %s", a.Category.Title(), telegram.EscapeMarkdown(a.Name)))
	}
	return strings.Join(lines, "\n")
}

// FormatHistory lists the user's lookups, newest first.
func FormatHistory(entries []models.HistoryEntry) string {
	lines := []string{"Ваши последние запросы:"}
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s, r=%s", i+1, e.Label, geometry.FormatCoord(e.Radius)))
	}
	return strings.Join(lines, "\n")
}

func FormatTop(top []models.RatedAddress) string {
	lines := []string{"Топ-10 домов по рейтингу:"}
	for _, r := range top {
		lines = append(lines, fmt.Sprintf("- %s => %s", r.Address, render.FormatValue(r.TotalScore, true)))
	}
	return strings.Join(lines, "\n")
}

func optInt(v *int) string {
	if v == nil {
		return render.Missing
	}
	return fmt.Sprint(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return render.Missing
	}
	return render.FormatValue(*v, true)
}

func yesNo(v bool) string {
	if v {
		return "Да"
	}
	return "Нет"
}
