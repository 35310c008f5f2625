package models

// HistoryEntry remembers one successful lookup. Label describes how the query
// was formed (coordinates, address or device location).
type HistoryEntry struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
	Label     string  `json:"label"`
}
