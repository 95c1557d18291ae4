package swapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"swcatalog/pkg/models"
)

// ErrInvalidRecord marks an upstream record that cannot be stored: a field
// is missing, has the wrong JSON type, or does not parse.
var ErrInvalidRecord = errors.New("invalid record")

// Person is the upstream shape of a /people/ record.
type Person struct {
	Name      string   `json:"name"`
	BirthYear string   `json:"birth_year"`
	EyeColor  string   `json:"eye_color"`
	Gender    string   `json:"gender"`
	HairColor string   `json:"hair_color"`
	Height    string   `json:"height"`
	Mass      string   `json:"mass"`
	SkinColor string   `json:"skin_color"`
	Homeworld string   `json:"homeworld"`
	Species   []string `json:"species"`
	Vehicles  []string `json:"vehicles"`
	Created   string   `json:"created"`
	Edited    string   `json:"edited"`
	URL       string   `json:"url"`
}

var personFields = []string{
	"name", "birth_year", "eye_color", "gender", "hair_color", "height", "mass",
	"skin_color", "homeworld", "species", "vehicles", "created", "edited", "url",
}

// Film is the upstream shape of a /films/ record.
type Film struct {
	Title        string   `json:"title"`
	EpisodeID    int      `json:"episode_id"`
	OpeningCrawl string   `json:"opening_crawl"`
	Director     string   `json:"director"`
	Producer     string   `json:"producer"`
	ReleaseDate  string   `json:"release_date"`
	Characters   []string `json:"characters"`
	Starships    []string `json:"starships"`
	Planets      []string `json:"planets"`
	Species      []string `json:"species"`
	Vehicles     []string `json:"vehicles"`
	Created      string   `json:"created"`
	Edited       string   `json:"edited"`
	URL          string   `json:"url"`
}

var filmFields = []string{
	"title", "episode_id", "opening_crawl", "director", "producer", "release_date",
	"characters", "starships", "planets", "species", "vehicles", "created", "edited", "url",
}

// Starship is the upstream shape of a /starships/ record.
type Starship struct {
	Name                 string   `json:"name"`
	Model                string   `json:"model"`
	Manufacturer         string   `json:"manufacturer"`
	CostInCredits        *string  `json:"cost_in_credits"`
	Length               string   `json:"length"`
	MaxAtmospheringSpeed string   `json:"max_atmosphering_speed"`
	Crew                 string   `json:"crew"`
	Passengers           string   `json:"passengers"`
	CargoCapacity        string   `json:"cargo_capacity"`
	Consumables          string   `json:"consumables"`
	HyperdriveRating     string   `json:"hyperdrive_rating"`
	MGLT                 string   `json:"MGLT"`
	StarshipClass        string   `json:"starship_class"`
	Pilots               []string `json:"pilots"`
	Created              string   `json:"created"`
	Edited               string   `json:"edited"`
	URL                  string   `json:"url"`
}

var starshipFields = []string{
	"name", "model", "manufacturer", "cost_in_credits", "length", "max_atmosphering_speed",
	"crew", "passengers", "cargo_capacity", "consumables", "hyperdrive_rating", "MGLT",
	"starship_class", "pilots", "created", "edited", "url",
}

// nullable lists fields that may be present as JSON null.
var nullable = map[string]bool{"cost_in_credits": true}

// DecodePerson decodes one /people/ record, requiring every stored field.
func DecodePerson(raw json.RawMessage) (Person, error) {
	var p Person
	err := decodeStrict(raw, personFields, &p)
	return p, err
}

// DecodeFilm decodes one /films/ record, requiring every stored field.
func DecodeFilm(raw json.RawMessage) (Film, error) {
	var f Film
	err := decodeStrict(raw, filmFields, &f)
	return f, err
}

// DecodeStarship decodes one /starships/ record, requiring every stored field.
func DecodeStarship(raw json.RawMessage) (Starship, error) {
	var s Starship
	err := decodeStrict(raw, starshipFields, &s)
	return s, err
}

func decodeStrict(raw json.RawMessage, required []string, dst any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var missing []string
	for _, name := range required {
		v, ok := fields[name]
		if !ok || (!nullable[name] && bytes.Equal(bytes.TrimSpace(v), []byte("null"))) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing field(s) %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// Key returns the natural key, for log lines.
func (p Person) Key() string   { return p.Name }
func (f Film) Key() string     { return f.Title }
func (s Starship) Key() string { return s.Name }

// ToModel maps the record into the local model. Relationship IDs are
// left empty; they are linked by the ingester.
func (p Person) ToModel() (models.Character, error) {
	if strings.TrimSpace(p.Name) == "" {
		return models.Character{}, fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	created, edited, err := parseStamps(p.Created, p.Edited)
	if err != nil {
		return models.Character{}, err
	}
	return models.Character{
		Name:      p.Name,
		BirthYear: p.BirthYear,
		EyeColor:  p.EyeColor,
		Gender:    p.Gender,
		HairColor: p.HairColor,
		Height:    p.Height,
		Mass:      p.Mass,
		SkinColor: p.SkinColor,
		Homeworld: p.Homeworld,
		Species:   nonNil(p.Species),
		Vehicles:  nonNil(p.Vehicles),
		Created:   created,
		Edited:    edited,
		URL:       p.URL,
	}, nil
}

func (f Film) ToModel() (models.Film, error) {
	if strings.TrimSpace(f.Title) == "" {
		return models.Film{}, fmt.Errorf("%w: empty title", ErrInvalidRecord)
	}
	if _, err := time.Parse(time.DateOnly, f.ReleaseDate); err != nil {
		return models.Film{}, fmt.Errorf("%w: release_date %q", ErrInvalidRecord, f.ReleaseDate)
	}
	created, edited, err := parseStamps(f.Created, f.Edited)
	if err != nil {
		return models.Film{}, err
	}
	return models.Film{
		Title:        f.Title,
		EpisodeID:    f.EpisodeID,
		OpeningCrawl: f.OpeningCrawl,
		Director:     f.Director,
		Producer:     f.Producer,
		ReleaseDate:  f.ReleaseDate,
		Planets:      nonNil(f.Planets),
		Species:      nonNil(f.Species),
		Vehicles:     nonNil(f.Vehicles),
		Created:      created,
		Edited:       edited,
		URL:          f.URL,
	}, nil
}

func (s Starship) ToModel() (models.Starship, error) {
	if strings.TrimSpace(s.Name) == "" {
		return models.Starship{}, fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	created, edited, err := parseStamps(s.Created, s.Edited)
	if err != nil {
		return models.Starship{}, err
	}
	return models.Starship{
		Name:                 s.Name,
		Model:                s.Model,
		Manufacturer:         s.Manufacturer,
		CostInCredits:        s.CostInCredits,
		Length:               s.Length,
		MaxAtmospheringSpeed: s.MaxAtmospheringSpeed,
		Crew:                 s.Crew,
		Passengers:           s.Passengers,
		CargoCapacity:        s.CargoCapacity,
		Consumables:          s.Consumables,
		HyperdriveRating:     s.HyperdriveRating,
		MGLT:                 s.MGLT,
		StarshipClass:        s.StarshipClass,
		Created:              created,
		Edited:               edited,
		URL:                  s.URL,
	}, nil
}

func parseStamps(created, edited string) (time.Time, time.Time, error) {
	c, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: created %q", ErrInvalidRecord, created)
	}
	e, err := time.Parse(time.RFC3339Nano, edited)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: edited %q", ErrInvalidRecord, edited)
	}
	return c.UTC(), e.UTC(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
