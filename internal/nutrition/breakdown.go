package nutrition

import "nutriscan/internal/model"

// Nutrient describes how one nutrient is judged on the detail view
type Nutrient struct {
	Key   string  `json:"key"`
	Title string  `json:"title"`
	Icon  string  `json:"icon"`
	Limit float64 `json:"limit"`
}

// Nutrients is the fixed display order
var Nutrients = []Nutrient{
	{Key: "proteins_100g", Title: "Protéines", Icon: "fish-outline", Limit: 100},
	{Key: "fiber_100g", Title: "Fibres", Icon: "leaf-outline", Limit: 100},
	{Key: "additives_tags", Title: "Additifs", Icon: "flask-outline", Limit: 1},
	{Key: "salt_100g", Title: "Sel", Icon: "bowling-ball-outline", Limit: 0.92},
	{Key: "energy_100g", Title: "Energie", Icon: "flame-outline", Limit: 360},
	{Key: "sugars_100g", Title: "Sucres", Icon: "cube-outline", Limit: 18},
	{Key: "fat_100g", Title: "Gras", Icon: "water-outline", Limit: 4},
}

// Item is one judged nutrient
type Item struct {
	Nutrient
	Value float64 `json:"value"`
	Good  bool    `json:"good"`
}

// Breakdown judges every reported nutrient against its limit. Good items
// come first; a value equal to its limit is neither good nor bad and is
// left out.
func Breakdown(p *model.ProductPayload) []Item {
	var good, bad []Item
	for _, n := range Nutrients {
		v, ok := lookup(p, n.Key)
		if !ok {
			continue
		}
		switch {
		case v < n.Limit:
			good = append(good, Item{Nutrient: n, Value: v, Good: true})
		case v > n.Limit:
			bad = append(bad, Item{Nutrient: n, Value: v})
		}
	}
	return append(good, bad...)
}

func lookup(p *model.ProductPayload, key string) (float64, bool) {
	if key == "additives_tags" {
		if p.AdditivesTags == nil {
			return 0, false
		}
		return float64(len(p.AdditivesTags)), true
	}

	n := p.Nutriments
	if n == nil {
		return 0, false
	}
	var v *float64
	switch key {
	case "proteins_100g":
		v = n.Proteins
	case "fiber_100g":
		v = n.Fiber
	case "salt_100g":
		v = n.Salt
	case "energy_100g":
		v = n.Energy
	case "sugars_100g":
		v = n.Sugars
	case "fat_100g":
		v = n.Fat
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
