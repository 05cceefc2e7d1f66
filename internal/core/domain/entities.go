package domain

import (
	"strings"
	"time"
)

// Category classifies a place.
type Category string

const (
	CategoryAttraction Category = "attraction"
	CategoryRestaurant Category = "restaurant"
	CategoryShopping   Category = "shopping"
	CategoryLodging    Category = "lodging"
	CategoryTransitHub Category = "transit-hub"
)

// ParseCategory maps a free-form category name onto a known Category.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "attraction", "sight", "sightseeing", "landmark", "景点":
		return CategoryAttraction, true
	case "restaurant", "food", "dining", "餐厅", "美食":
		return CategoryRestaurant, true
	case "shopping", "shop", "mall", "购物":
		return CategoryShopping, true
	case "lodging", "hotel", "accommodation", "住宿", "酒店":
		return CategoryLodging, true
	case "transit-hub", "transit_hub", "transit", "station", "airport", "交通":
		return CategoryTransitHub, true
	}
	return "", false
}

// PlaceRecord is the authoritative place entity owned by the place service.
type PlaceRecord struct {
	ID               string         `json:"id"`
	NameCN           string         `json:"nameCN"`
	NameEN           string         `json:"nameEN"`
	Category         Category       `json:"category"`
	Address          string         `json:"address"`
	Description      string         `json:"description"`
	Rating           float64        `json:"rating"`
	ExternalPlaceID  string         `json:"externalPlaceId,omitempty"`
	Location         *GeoPoint      `json:"location,omitempty"`
	CityID           *string        `json:"cityId,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	PhysicalMetadata map[string]any `json:"physicalMetadata,omitempty"`
	Distance         *float64       `json:"distance,omitempty"` // computed field, metres
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// DisplayName returns the best human-readable name of the place.
func (p PlaceRecord) DisplayName() string {
	switch {
	case p.NameCN != "" && p.NameEN != "":
		return p.NameCN + " (" + p.NameEN + ")"
	case p.NameCN != "":
		return p.NameCN
	case p.NameEN != "":
		return p.NameEN
	}
	return p.ID
}

// FormState is the set of unsaved edits the reviewer has made in the place form.
type FormState struct {
	Address  *string   `json:"address,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
}

// ChatTurn is one message in the assistant conversation.
type ChatTurn struct {
	Role    string `json:"role"` // "user" | "model"
	Content string `json:"content"`
}
