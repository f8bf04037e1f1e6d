package property

import (
	"errors"
	"testing"
)

func TestAllPropertiesHaveSchemas(t *testing.T) {
	for _, n := range All() {
		schema, err := Schema(n)
		if err != nil {
			t.Errorf("Schema(%q) returned error: %v", n, err)
			continue
		}
		if len(schema.StateFields) == 0 {
			t.Errorf("property %q has no state fields", n)
		}
		if len(schema.Roles) == 0 {
			t.Errorf("property %q has no roles", n)
		}
	}
}

func TestSchemaUnknownProperty(t *testing.T) {
	_, err := Schema("teleportation")
	if !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("expected ErrUnknownProperty, got %v", err)
	}
}

func TestValid(t *testing.T) {
	if !Valid(Illumination) {
		t.Error("Valid(Illumination) = false, want true")
	}
	if Valid("teleportation") {
		t.Error("Valid(teleportation) = true, want false")
	}
}

func TestValidateFeatures(t *testing.T) {
	tests := []struct {
		name     string
		prop     Name
		features []Feature
		wantErr  error
	}{
		{"valid subset", Illumination, []Feature{"dimmable", "color_temp"}, nil},
		{"empty set", Climate, nil, nil},
		{"outside vocabulary", Illumination, []Feature{"setpoint"}, ErrInvalidFeature},
		{"unknown property", "teleportation", []Feature{"dimmable"}, ErrUnknownProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeatures(tt.prop, tt.features)
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		prop    Name
		params  map[string]any
		wantErr error
	}{
		{"valid illumination command", Illumination, map[string]any{"on": true, "brightness": 80}, nil},
		{"state-only field rejected", Illumination, map[string]any{"on": true, "unknown": 1}, ErrInvalidCommand},
		{"read-only domain rejects everything", Occupancy, map[string]any{"occupied": true}, ErrInvalidCommand},
		{"empty params pass", Weather, map[string]any{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.prop, tt.params)
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRole(t *testing.T) {
	if err := ValidateRole(Illumination, RolePrimary); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRole(Occupancy, RolePrimary); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("got %v, want ErrInvalidRole", err)
	}
}

func TestCatalogReturnsCopy(t *testing.T) {
	c := Catalog()
	delete(c, Illumination)
	if !Valid(Illumination) {
		t.Error("mutating Catalog() copy affected the catalog")
	}
}
