package models

import "github.com/paulmach/orb"

// AmenityCategory is one of the four point layers searched around a building.
type AmenityCategory string

const (
	AmenityEducation  AmenityCategory = "education"
	AmenityChildcare  AmenityCategory = "childcare"
	AmenityHealth     AmenityCategory = "health"
	AmenityRecreation AmenityCategory = "recreation"
)

// AmenityCategories is the closed set of categories, one per point layer.
var AmenityCategories = []AmenityCategory{
	AmenityEducation,
	AmenityChildcare,
	AmenityHealth,
	AmenityRecreation,
}

// Title returns the user-facing name of the category.
func (c AmenityCategory) Title() string {
	switch c {
	case AmenityEducation:
		return "Школа"
	case AmenityChildcare:
		return "Детский сад"
	case AmenityHealth:
		return "Больница"
	case AmenityRecreation:
		return "Парк"
	default:
		return string(c)
	}
}

type Amenity struct {
	Category AmenityCategory `json:"category"`
	Name     string          `json:"name"`
}

// Building is a rated building. Scores are always present; the structural
// attributes are nullable in the source data.
type Building struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`

	TotalScore     float64 `json:"total_score"`
	SocialScore    float64 `json:"social_score"`
	QualityScore   float64 `json:"quality_score"`
	TransportScore float64 `json:"transport_score"`

	BuildYear          *int     `json:"build_year"`
	Floors             *int     `json:"floors"`
	IsEmergency        bool     `json:"is_emergency"`
	Area               *float64 `json:"area"`
	LivingArea         *float64 `json:"living_area"`
	NonLivingArea      *float64 `json:"non_living_area"`
	Apartments         *int     `json:"apartments"`
	BuildingTypeID     *int     `json:"building_type_id"`
	IsCulturalHeritage bool     `json:"is_cultural_heritage"`

	// Latitude and Longitude are the scalar columns as entered; Geometry is
	// derived from the geom column and may disagree slightly.
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Geometry  orb.Point `json:"geometry"`
}

// BuildingReport is the nearest building together with the amenities found
// within Radius meters of it.
type BuildingReport struct {
	Building  Building  `json:"building"`
	Amenities []Amenity `json:"amenities"`
	Radius    float64   `json:"radius"`
}

// RatedAddress is one row of the top-rated listing.
type RatedAddress struct {
	ID         int64   `json:"id"`
	Address    string  `json:"address"`
	TotalScore float64 `json:"total_score"`
}
