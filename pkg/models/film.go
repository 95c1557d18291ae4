package models

import "time"

// Film is a locally stored film, keyed by Title. Characters and Starships
// hold local IDs of linked rows; Planets, Species and Vehicles keep the
// upstream URLs verbatim because those kinds are not mirrored.
type Film struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	EpisodeID    int       `json:"episode_id"`
	OpeningCrawl string    `json:"opening_crawl"`
	Director     string    `json:"director"`
	Producer     string    `json:"producer"`
	ReleaseDate  string    `json:"release_date"` // YYYY-MM-DD
	Characters   []int64   `json:"characters"`
	Starships    []int64   `json:"starships"`
	Planets      []string  `json:"planets"`
	Species      []string  `json:"species"`
	Vehicles     []string  `json:"vehicles"`
	Created      time.Time `json:"created"`
	Edited       time.Time `json:"edited"`
	URL          string    `json:"url"`
}
