package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"housebot/server/internal/geometry"
	"housebot/server/internal/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tune the connection pool and per-query deadline.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

// Database is a read-only client of the buildings PostGIS database.
type Database struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewDatabase(dsn string, opts Options) (*Database, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &Database{db: db, queryTimeout: opts.QueryTimeout}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection is usable.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.queryTimeout)
}

// FindNearestBuilding returns the rated building closest to (lat, lon) and the
// amenities within radius meters of it. The building search is not bounded
// by radius. It returns nil, nil when no rated building exists.
func (d *Database) FindNearestBuilding(ctx context.Context, lat, lon, radius float64) (*models.BuildingReport, error) {
	radius = geometry.EffectiveRadius(radius)

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	building, err := d.nearestBuilding(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	if building == nil {
		return nil, nil
	}

	amenities, err := d.amenitiesAround(ctx, building.ID, radius)
	if err != nil {
		return nil, err
	}

	return &models.BuildingReport{
		Building:  *building,
		Amenities: amenities,
		Radius:    radius,
	}, nil
}

func (d *Database) nearestBuilding(ctx context.Context, lat, lon float64) (*models.Building, error) {
	rows, err := d.db.WithContext(ctx).Raw(nearestBuildingQuery, map[string]interface{}{
		"lon": lon,
		"lat": lat,
	}).Rows()
	if err != nil {
		return nil, fmt.Errorf("nearest building query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("nearest building query failed: %w", err)
		}
		return nil, nil
	}

	b, err := scanBuilding(rows)
	if err != nil {
		return nil, err
	}
	return b, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBuilding(rows rowScanner) (*models.Building, error) {
	var (
		b                                     models.Building
		buildYear, floors, apartments, typeID sql.NullInt64
		area, livingArea, nonLivingArea       sql.NullFloat64
		latitude, longitude                   sql.NullFloat64
		isEmergency, isHeritage               sql.NullBool
		point                                 orb.Point
	)

	err := rows.Scan(
		&b.ID,
		&b.Address,
		&b.TotalScore,
		&b.SocialScore,
		&b.QualityScore,
		&b.TransportScore,
		&buildYear,
		&floors,
		&isEmergency,
		&area,
		&apartments,
		&typeID,
		&livingArea,
		&nonLivingArea,
		&isHeritage,
		&latitude,
		&longitude,
		wkb.Scanner(&point),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan building: %w", err)
	}

	b.BuildYear = nullInt(buildYear)
	b.Floors = nullInt(floors)
	b.Apartments = nullInt(apartments)
	b.BuildingTypeID = nullInt(typeID)
	b.Area = nullFloat(area)
	b.LivingArea = nullFloat(livingArea)
	b.NonLivingArea = nullFloat(nonLivingArea)
	b.Latitude = nullFloat(latitude)
	b.Longitude = nullFloat(longitude)
	b.IsEmergency = isEmergency.Valid && isEmergency.Bool
	b.IsCulturalHeritage = isHeritage.Valid && isHeritage.Bool
	b.Geometry = point

	return &b, nil
}

type amenityRow struct {
	Category string `gorm:"column:category"`
	Name     string `gorm:"column:name"`
}

func (d *Database) amenitiesAround(ctx context.Context, buildingID int64, radius float64) ([]models.Amenity, error) {
	var rows []amenityRow
	err := d.db.WithContext(ctx).Raw(amenitiesQuery, map[string]interface{}{
		"building_id": buildingID,
		"radius":      radius,
	}).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("amenities query failed: %w", err)
	}

	amenities := make([]models.Amenity, 0, len(rows))
	for _, r := range rows {
		amenities = append(amenities, models.Amenity{
			Category: models.AmenityCategory(r.Category),
			Name:     r.Name,
		})
	}
	return amenities, nil
}

// TopBuildings returns the highest rated buildings, best first.
func (d *Database) TopBuildings(ctx context.Context, limit int) ([]models.RatedAddress, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var rows []models.RatedAddress
	err := d.db.WithContext(ctx).Raw(topBuildingsQuery, map[string]interface{}{
		"limit": limit,
	}).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top buildings query failed: %w", err)
	}
	return rows, nil
}

// ScoreDistribution returns every total score in the ratings table.
func (d *Database) ScoreDistribution(ctx context.Context) ([]float64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var scores []float64
	err := d.db.WithContext(ctx).Raw(scoreDistributionQuery).Scan(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("score distribution query failed: %w", err)
	}
	return scores, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
