package seed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixtures describes demo accounts and the offers and needs each one publishes.
type Fixtures struct {
	Accounts []AccountFixture `yaml:"accounts"`
}

type AccountFixture struct {
	Email              string                `yaml:"email"`
	Password           string                `yaml:"password"`
	Role               string                `yaml:"role"`
	DisplayName        string                `yaml:"display_name"`
	RegistrationNumber string                `yaml:"registration_number"`
	Phone              string                `yaml:"phone"`
	Address            string                `yaml:"address"`
	Announcements      []AnnouncementFixture `yaml:"announcements"`
	Needs              []NeedFixture         `yaml:"needs"`
}

// AnnouncementFixture expires ExpiresIn after the moment it is seeded.
type AnnouncementFixture struct {
	OfferedItem string        `yaml:"offered_item"`
	Quantity    string        `yaml:"quantity"`
	Category    string        `yaml:"category"`
	Description string        `yaml:"description"`
	ExpiresIn   time.Duration `yaml:"expires_in"`
}

type NeedFixture struct {
	RequestedItem  string `yaml:"requested_item"`
	Quantity       string `yaml:"quantity"`
	Category       string `yaml:"category"`
	Urgency        string `yaml:"urgency"`
	TargetAudience string `yaml:"target_audience"`
}

// LoadFile reads fixtures from a YAML file.
func LoadFile(path string) (Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("open fixtures: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes fixtures, rejecting unknown keys.
func Parse(reader io.Reader) (Fixtures, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var fixtures Fixtures
	if err := decoder.Decode(&fixtures); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixtures{}, nil
		}
		return Fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	return fixtures, nil
}
