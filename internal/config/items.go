package config

import (
	"fmt"
	"os"

	"reservo/internal/models"

	"gopkg.in/yaml.v2"
)

// LoadItems reads the seed items file.
func LoadItems(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	var itemsConfig struct {
		Items []models.Item `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &itemsConfig); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}

	if err := ValidateItems(itemsConfig.Items); err != nil {
		return nil, err
	}
	return itemsConfig.Items, nil
}

// ValidateItems rejects zero or duplicate ids and items violating their own invariants.
func ValidateItems(items []models.Item) error {
	itemIDs := make(map[int64]bool)
	for _, item := range items {
		if item.ID == 0 {
			return fmt.Errorf("item '%s' has invalid ID 0", item.Name)
		}
		if itemIDs[item.ID] {
			return fmt.Errorf("duplicate item ID found: %d", item.ID)
		}
		itemIDs[item.ID] = true
		if item.WorkspaceID == 0 {
			return fmt.Errorf("item '%s' has no workspace_id", item.Name)
		}
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item '%s': %w", item.Name, err)
		}
	}
	return nil
}
