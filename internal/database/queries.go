package database

// Distances are computed on geography so they are geodesic meters.
// Amenities are ordered by the title shown to users, then by name.

const nearestBuildingQuery = `
    SELECT b.building_id,
           b.address,
           ROUND(br.total_score::numeric, 2)::float8     AS total_score,
           ROUND(br.social_score::numeric, 2)::float8    AS social_score,
           ROUND(br.quality_score::numeric, 2)::float8   AS quality_score,
           ROUND(br.transport_score::numeric, 2)::float8 AS transport_score,
           b.build_year,
           b.floors_number,
           b.is_emergency,
           b.square::float8,
           b.apartments_number,
           b.building_type_id,
           b.living_area::float8,
           b.not_living_area::float8,
           b.is_cultural_heritage,
           b.latitude::float8,
           b.longitude::float8,
           ST_AsBinary(ST_PointOnSurface(b.geom)) AS geom
    FROM building b
    JOIN building_ratings br ON br.building_id = b.building_id
    ORDER BY ST_Distance(
             b.geom::geography,
             ST_SetSRID(ST_MakePoint(@lon, @lat), 4326)::geography)
    LIMIT 1`

const amenitiesQuery = `
    WITH center AS (
        SELECT geom::geography AS geog
        FROM building
        WHERE building_id = @building_id
    )
    SELECT 'education' AS category, 'Школа' AS title, s.name
    FROM school s, center
    WHERE ST_DWithin(center.geog, s.geom::geography, @radius)

    UNION ALL
    SELECT 'childcare' AS category, 'Детский сад' AS title, k.name
    FROM kindergarten k, center
    WHERE ST_DWithin(center.geog, k.geom::geography, @radius)

    UNION ALL
    SELECT 'health' AS category, 'Больница' AS title, h.name
    FROM hospital h, center
    WHERE ST_DWithin(center.geog, h.geom::geography, @radius)

    UNION ALL
    SELECT 'recreation' AS category, 'Парк' AS title, p.name
    FROM park p, center
    WHERE ST_DWithin(center.geog, p.geom::geography, @radius)
    ORDER BY title, name`

const topBuildingsQuery = `
    SELECT b.building_id AS id,
           b.address,
           ROUND(br.total_score::numeric, 2)::float8 AS total_score
    FROM building b
    JOIN building_ratings br ON br.building_id = b.building_id
    ORDER BY br.total_score DESC
    LIMIT @limit`

const scoreDistributionQuery = `SELECT total_score::float8 FROM building_ratings`

const schemaCheckQuery = `SELECT to_regclass(@name) IS NOT NULL`
