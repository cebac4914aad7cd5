package model

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ProductPayload is the subset of a remote product record the app consumes.
// Unknown fields are dropped on decode.
type ProductPayload struct {
	Code          string      `json:"code"`
	ProductName   string      `json:"product_name,omitempty"`
	ProductNameFr string      `json:"product_name_fr,omitempty"`
	GenericNameFr string      `json:"generic_name_fr,omitempty"`
	Brands        string      `json:"brands,omitempty"`
	ImageURL      string      `json:"image_url,omitempty"`
	AdditivesTags []string    `json:"additives_tags,omitempty"`
	Nutriments    *Nutriments `json:"nutriments,omitempty"`

	// Score is computed locally after a successful lookup
	Score int `json:"score"`
}

// DisplayName picks the best available name
func (p *ProductPayload) DisplayName() string {
	for _, name := range []string{p.ProductName, p.ProductNameFr, p.GenericNameFr} {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return ""
}

// Nutriments holds per-100g nutrient values. A nil field means the remote
// record did not report it.
type Nutriments struct {
	Energy        *float64 `json:"energy_100g,omitempty" mapstructure:"energy_100g"`
	Fat           *float64 `json:"fat_100g,omitempty" mapstructure:"fat_100g"`
	Carbohydrates *float64 `json:"carbohydrates_100g,omitempty" mapstructure:"carbohydrates_100g"`
	Sugars        *float64 `json:"sugars_100g,omitempty" mapstructure:"sugars_100g"`
	Fiber         *float64 `json:"fiber_100g,omitempty" mapstructure:"fiber_100g"`
	Proteins      *float64 `json:"proteins_100g,omitempty" mapstructure:"proteins_100g"`
	Salt          *float64 `json:"salt_100g,omitempty" mapstructure:"salt_100g"`
}

// UnmarshalJSON accepts numbers and numeric strings, the remote API emits both
func (n *Nutriments) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return DecodeNutriments(raw, n)
}

// DecodeNutriments decodes a loosely typed nutrient map into n
func DecodeNutriments(raw map[string]interface{}, n *Nutriments) error {
	var out Nutriments
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return &MalformedDataError{Source: "nutriments", Err: err}
	}
	*n = out
	return nil
}

// Float64 is a convenience for building optional nutrient values
func Float64(v float64) *float64 {
	return &v
}
