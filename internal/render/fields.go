package render

import (
	"strconv"

	"housebot/server/internal/models"
)

// Missing is printed in place of a value the database does not have.
const Missing = "нет данных"

// Field is one row of the comparison, in display order.
type Field struct {
	Key   string
	Label string
	Value func(b *models.Building) (float64, bool)
}

func score(get func(b *models.Building) float64) func(b *models.Building) (float64, bool) {
	return func(b *models.Building) (float64, bool) { return get(b), true }
}

func optInt(get func(b *models.Building) *int) func(b *models.Building) (float64, bool) {
	return func(b *models.Building) (float64, bool) {
		v := get(b)
		if v == nil {
			return 0, false
		}
		return float64(*v), true
	}
}

func optFloat(get func(b *models.Building) *float64) func(b *models.Building) (float64, bool) {
	return func(b *models.Building) (float64, bool) {
		v := get(b)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
}

var Fields = []Field{
	{"total_score", "Общий рейтинг", score(func(b *models.Building) float64 { return b.TotalScore })},
	{"social_score", "Соц. оценка", score(func(b *models.Building) float64 { return b.SocialScore })},
	{"quality_score", "Качество", score(func(b *models.Building) float64 { return b.QualityScore })},
	{"transport_score", "Транспорт", score(func(b *models.Building) float64 { return b.TransportScore })},
	{"build_year", "Год постройки", optInt(func(b *models.Building) *int { return b.BuildYear })},
	{"floors_number", "Этажей", optInt(func(b *models.Building) *int { return b.Floors })},
	{"square", "Площадь", optFloat(func(b *models.Building) *float64 { return b.Area })},
	{"apartments_number", "Квартир", optInt(func(b *models.Building) *int { return b.Apartments })},
	{"living_area", "Жилая пл.", optFloat(func(b *models.Building) *float64 { return b.LivingArea })},
	{"not_living_area", "Нежилая пл.", optFloat(func(b *models.Building) *float64 { return b.NonLivingArea })},
}

// FormatValue prints v without trailing zeros, or Missing when ok is false.
func FormatValue(v float64, ok bool) string {
	if !ok {
		return Missing
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
