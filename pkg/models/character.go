package models

import "time"

// Character is a locally stored person, keyed by Name. Starships lists the
// starships this character pilots and is derived from Starship.Pilots.
type Character struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BirthYear string    `json:"birth_year"`
	EyeColor  string    `json:"eye_color"`
	Gender    string    `json:"gender"`
	HairColor string    `json:"hair_color"`
	Height    string    `json:"height"`
	Mass      string    `json:"mass"`
	SkinColor string    `json:"skin_color"`
	Homeworld string    `json:"homeworld"`
	Species   []string  `json:"species"`
	Vehicles  []string  `json:"vehicles"`
	Starships []int64   `json:"starships"`
	Created   time.Time `json:"created"`
	Edited    time.Time `json:"edited"`
	URL       string    `json:"url"`
}
