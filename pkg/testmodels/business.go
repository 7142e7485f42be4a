package testmodels

import (
	"strings"
	"time"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/modelregistry"
)

// Country is the top level of the country → city cascade.
type Country struct {
	ID        uint      `json:"id" gorm:"primaryKey" bun:"id,pk,autoincrement" extras:"hidden"`
	Name      string    `json:"name" gorm:"uniqueIndex"`
	Code      string    `json:"code" extras:"short-span"`
	CreatedAt time.Time `json:"created_at"`
}

func (Country) TableName() string  { return "countries" }
func (*Country) GetTitle() string  { return "Countries" }
func (*Country) GetApiUrl() string { return "/api/countries" }

// City belongs to a country.
type City struct {
	ID        uint     `json:"id" gorm:"primaryKey" bun:"id,pk,autoincrement" extras:"hidden"`
	Name      string   `json:"name"`
	CountryID uint     `json:"country_id"`
	Country   *Country `json:"-" gorm:"foreignKey:CountryID" bun:"-"`
}

func (City) TableName() string  { return "cities" }
func (*City) GetTitle() string  { return "Cities" }
func (*City) GetApiUrl() string { return "/api/cities" }

// Team plays in a city.
type Team struct {
	ID        uint      `json:"id" gorm:"primaryKey" bun:"id,pk,autoincrement" extras:"hidden"`
	Name      string    `json:"name" gorm:"uniqueIndex"`
	Founded   time.Time `json:"founded"`
	Labels    string    `json:"labels" extras:"tags,optional"`
	CityID    uint      `json:"city_id"`
	City      *City     `json:"-" gorm:"foreignKey:CityID" bun:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Team) TableName() string     { return "teams" }
func (*Team) GetTitle() string     { return "Teams" }
func (*Team) GetApiUrl() string    { return "/api/teams" }
func (*Team) PreFetchSort() string { return "teams.founded ASC" }

// Player exercises every field kind: enum, cascading selects, block, chart and href.
type Player struct {
	ID         uint      `json:"id" gorm:"primaryKey" bun:"id,pk,autoincrement" extras:"hidden"`
	Name       string    `json:"name" extras:"href:profile_url"`
	ProfileURL string    `json:"profile_url" extras:"hidden"`
	Position   string    `json:"position" extras:"enum:Goalkeeper|Defender|Midfielder|Forward,short-span"`
	Age        int       `json:"age" extras:"short-span"`
	Active     bool      `json:"active"`
	Bio        string    `json:"bio" extras:"block,optional"`
	Stats      string    `json:"stats" extras:"chartData,optional"`
	TeamID     uint      `json:"team_id"`
	Team       *Team     `json:"-" gorm:"foreignKey:TeamID" bun:"-"`
	CountryID  uint      `json:"country_id"`
	Country    *Country  `json:"-" gorm:"foreignKey:CountryID" bun:"-"`
	CityID     uint      `json:"city_id"`
	City       *City     `json:"-" gorm:"foreignKey:CityID" bun:"-" extras:"masterSelector:country_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Player) TableName() string     { return "players" }
func (*Player) GetTitle() string     { return "Players" }
func (*Player) GetApiUrl() string    { return "/api/players" }
func (*Player) ExtraActions() string { return "retire" }

// User carries a sensitive password and an enum role.
type User struct {
	ID       uint   `json:"id" gorm:"primaryKey" bun:"id,pk,autoincrement" extras:"hidden"`
	Name     string `json:"username" gorm:"column:username;unique" bun:"username"`
	Password string `json:"password" extras:"sensitive"`
	Role     string `json:"role" extras:"enum:Admin|Scraper"`
}

func (User) TableName() string  { return "users" }
func (*User) GetTitle() string  { return "Users Management" }
func (*User) GetApiUrl() string { return "/api/user" }

// Scraper accounts are service users and stay out of the grid.
func (*User) PreFetchConditions() string { return "COALESCE(users.role, '') <> 'Scraper'" }

// CleanID accepts the "u-<id>" form shown in user links.
func (*User) CleanID(id string) string { return strings.TrimPrefix(id, "u-") }

func (*User) PreUpdate(values map[string]interface{}) {
	if name, ok := values["username"].(string); ok {
		values["username"] = strings.ToLower(strings.TrimSpace(name))
	}
}

// RegisterTestModels registers all test models with the provided registry
func RegisterTestModels(registry *modelregistry.DefaultModelRegistry) error {
	for _, m := range GetTestModels() {
		if err := registry.RegisterModel("", m); err != nil {
			return err
		}
	}
	return nil
}

// GetTestModels returns a list of all test model instances
func GetTestModels() []interface{} {
	return []interface{}{
		Country{},
		City{},
		Team{},
		Player{},
		User{},
	}
}
