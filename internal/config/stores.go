package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/catalog-scraper/internal/models"
)

const (
	StoreIDCookie     = "metroStoreId"
	PickupStoreCookie = "pickupStore"

	CitySaintPetersburg = "spb"
	CityMoscow          = "moscow"
)

// StoresFile is the layout of STORES_FILE:
//
//	cities:
//	  - name: spb
//	    stores:
//	      - id: "20"
//	        name: Пулковское шоссе, 23
//
// A store without identity gets the metroStoreId and pickupStore cookies
// set to its id.
type StoresFile struct {
	Cities []CityStores `yaml:"cities"`
}

type CityStores struct {
	Name   string      `yaml:"name"`
	Stores []StoreFile `yaml:"stores"`
}

type StoreFile struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Identity map[string]string `yaml:"identity"`
}

// LoadStoresFile reads store contexts from a YAML file, keeping file order.
func LoadStoresFile(path string) ([]models.StoreContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stores file: %w", err)
	}

	return ParseStores(data)
}

func ParseStores(data []byte) ([]models.StoreContext, error) {
	var file StoresFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse stores file: %w", err)
	}

	seen := make(map[string]bool)
	var stores []models.StoreContext

	for _, city := range file.Cities {
		if city.Name == "" {
			return nil, fmt.Errorf("stores file: city without name")
		}
		for _, s := range city.Stores {
			if s.ID == "" {
				return nil, fmt.Errorf("stores file: store without id in city %q", city.Name)
			}
			if seen[s.ID] {
				return nil, fmt.Errorf("stores file: duplicate store id %q", s.ID)
			}
			seen[s.ID] = true

			identity := s.Identity
			if len(identity) == 0 {
				identity = storeIdentity(s.ID)
			}

			stores = append(stores, models.StoreContext{
				ID:       s.ID,
				City:     city.Name,
				Name:     s.Name,
				Identity: identity,
			})
		}
	}

	return stores, nil
}

// DefaultStores lists the St. Petersburg and Moscow stores, St. Petersburg first.
func DefaultStores() []models.StoreContext {
	var stores []models.StoreContext
	add := func(city, id, name string) {
		stores = append(stores, models.StoreContext{
			ID:       id,
			City:     city,
			Name:     name,
			Identity: storeIdentity(id),
		})
	}

	add(CitySaintPetersburg, "20", "Пулковское шоссе, д. 23, лит. A")
	add(CitySaintPetersburg, "16", "Пр-т Косыгина, д. 4, лит. А")
	add(CitySaintPetersburg, "15", "Комендантский пр-т, д. 3, лит. А")

	add(CityMoscow, "10", "Ленинградское шоссе, д. 71Г")
	add(CityMoscow, "11", "Пр-т Мира, д. 211, стр. 1")
	add(CityMoscow, "12", "Дорожная, д. 1, корп. 1")
	add(CityMoscow, "13", "Рябиновая, д. 59")
	add(CityMoscow, "14", "Дмитровское шоссе, д. 165Б")
	add(CityMoscow, "17", "Маршала Прошлякова, д. 14")
	add(CityMoscow, "18", "104 км МКАД, д. 6")
	add(CityMoscow, "19", "Шоссейная, д. 2Б")
	add(CityMoscow, "49", "П. Московский, кв-л 34, д. 3, стр. 1")
	add(CityMoscow, "308", "Складочная, д. 1, стр. 1")
	add(CityMoscow, "356", "1-я Дубровская, д. 13А, стр. 1")
	add(CityMoscow, "363", "Боровское шоссе, д. 10А")

	return stores
}

func storeIdentity(id string) map[string]string {
	return map[string]string{
		StoreIDCookie:     id,
		PickupStoreCookie: id,
	}
}
