package models

import "encoding/json"

// PartnerStats are the backend's aggregate figures for the signed-in partner.
type PartnerStats struct {
	TotalBookings     int     `json:"totalBookings"`
	CompletedBookings int     `json:"completedBookings"`
	PendingBookings   int     `json:"pendingBookings"`
	TodayEarnings     float64 `json:"todayEarnings"`
	TotalEarnings     float64 `json:"totalEarnings"`
	AverageRating     float64 `json:"averageRating"`
}

// UnmarshalJSON reads the figures from the top level or from a data wrapper.
// Values that are neither numbers nor numeric strings count as zero.
func (s *PartnerStats) UnmarshalJSON(data []byte) error {
	type figures struct {
		TotalBookings     json.RawMessage `json:"totalBookings"`
		CompletedBookings json.RawMessage `json:"completedBookings"`
		PendingBookings   json.RawMessage `json:"pendingBookings"`
		TodayEarnings     json.RawMessage `json:"todayEarnings"`
		TotalEarnings     json.RawMessage `json:"totalEarnings"`
		AverageRating     json.RawMessage `json:"averageRating"`
	}
	var raw struct {
		figures
		Data *figures `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f := raw.figures
	if raw.Data != nil {
		f = *raw.Data
	}
	num := func(r json.RawMessage) float64 {
		v, err := looseFloat(r)
		if err != nil {
			return 0
		}
		return v
	}
	*s = PartnerStats{
		TotalBookings:     int(num(f.TotalBookings)),
		CompletedBookings: int(num(f.CompletedBookings)),
		PendingBookings:   int(num(f.PendingBookings)),
		TodayEarnings:     num(f.TodayEarnings),
		TotalEarnings:     num(f.TotalEarnings),
		AverageRating:     num(f.AverageRating),
	}
	return nil
}
