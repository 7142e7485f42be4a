package testmodels

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"gorm.io/gorm"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// MigrateGORM creates the tables of the test models through gorm.
func MigrateGORM(db *gorm.DB) error {
	return db.AutoMigrate(&Country{}, &City{}, &Team{}, &Player{}, &User{})
}

// MigrateBun creates the tables of the test models through bun.
func MigrateBun(ctx context.Context, db *bun.DB) error {
	for _, m := range []interface{}{(*Country)(nil), (*City)(nil), (*Team)(nil), (*Player)(nil), (*User)(nil)} {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

// HashPassword returns the hex sha256 digest stored in the users table.
func HashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

var (
	seedCountries = [][2]string{{"Egypt", "EG"}, {"Spain", "ES"}, {"England", "GB"}}

	// city name -> country id
	seedCities = []struct {
		name    string
		country int
	}{
		{"Cairo", 1}, {"Alexandria", 1},
		{"Madrid", 2}, {"Barcelona", 2},
		{"London", 3}, {"Manchester", 3},
	}

	seedTeams = []struct {
		name    string
		city    int
		founded string
		labels  string
	}{
		{"Al Ahly", 1, "1907-04-24", "cairo, red devils"},
		{"Zamalek", 1, "1911-01-05", "cairo, white knights"},
		{"Real Madrid", 3, "1902-03-06", "madrid, los blancos"},
		{"FC Barcelona", 4, "1899-11-29", "catalonia, blaugrana"},
		{"Arsenal", 5, "1886-12-01", "london, gunners"},
		{"Manchester City", 6, "1880-11-13", "manchester, citizens"},
	}

	seedPositions = []string{"Goalkeeper", "Defender", "Midfielder", "Forward"}
)

// SeedPlayerCount is the number of players created by Seed.
const SeedPlayerCount = 48

// Seed fills an empty database with demo rows. It is a no-op when countries exist.
func Seed(ctx context.Context, db common.Database, now time.Time) error {
	count, err := db.NewSelect().Table("countries").Count(ctx)
	if err != nil {
		return fmt.Errorf("count countries: %w", err)
	}
	if count > 0 {
		logger.Debug("Skipping seed, %d countries present", count)
		return nil
	}

	return db.RunInTransaction(ctx, func(tx common.Database) error {
		insert := func(table string, values map[string]interface{}) error {
			q := tx.NewInsert().Table(table)
			for k, v := range values {
				q = q.Value(k, v)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("seed %s: %w", table, err)
			}
			return nil
		}

		for _, c := range seedCountries {
			if err := insert("countries", map[string]interface{}{"name": c[0], "code": c[1], "created_at": now}); err != nil {
				return err
			}
		}
		for _, c := range seedCities {
			if err := insert("cities", map[string]interface{}{"name": c.name, "country_id": c.country}); err != nil {
				return err
			}
		}
		for _, t := range seedTeams {
			founded, _ := time.Parse("2006-01-02", t.founded)
			if err := insert("teams", map[string]interface{}{
				"name": t.name, "city_id": t.city, "founded": founded, "labels": t.labels,
				"created_at": now, "updated_at": now,
			}); err != nil {
				return err
			}
		}
		for i := 0; i < SeedPlayerCount; i++ {
			team := i%len(seedTeams) + 1
			city := seedTeams[team-1].city
			name := fmt.Sprintf("Player %02d", i+1)
			if err := insert("players", map[string]interface{}{
				"name":        name,
				"profile_url": fmt.Sprintf("https://example.com/players/%d", i+1),
				"position":    seedPositions[i%len(seedPositions)],
				"age":         18 + i%17,
				"active":      i%5 != 0,
				"bio":         fmt.Sprintf("%s joined the squad in %d.\nHe plays as a %s.", name, 2010+i%14, seedPositions[i%len(seedPositions)]),
				"stats":       fmt.Sprintf(`{"sensorData":[%d,%d,%d]}`, i%7, i%11, i%13),
				"team_id":     team,
				"country_id":  seedCities[city-1].country,
				"city_id":     city,
				"created_at":  now,
				"updated_at":  now,
			}); err != nil {
				return err
			}
		}
		if err := insert("users", map[string]interface{}{
			"username": "admin", "password": HashPassword("admin"), "role": "Admin",
		}); err != nil {
			return err
		}
		logger.Info("Seeded %d countries, %d cities, %d teams and %d players",
			len(seedCountries), len(seedCities), len(seedTeams), SeedPlayerCount)
		return nil
	})
}
