package nutrition

import (
	"testing"

	"nutriscan/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   *model.Nutriments
		want int
	}{
		{
			name: "reference product",
			in: &model.Nutriments{
				Energy:        model.Float64(300),
				Fat:           model.Float64(10),
				Carbohydrates: model.Float64(20),
				Sugars:        model.Float64(15),
				Fiber:         model.Float64(5),
				Proteins:      model.Float64(10),
				Salt:          model.Float64(0.5),
			},
			want: 4,
		},
		{
			name: "all fields missing",
			in:   &model.Nutriments{},
			want: 0,
		},
		{
			name: "nil nutriments",
			in:   nil,
			want: 0,
		},
		{
			name: "clamped to max",
			in:   &model.Nutriments{Energy: model.Float64(20000)},
			want: 100,
		},
		{
			name: "negative clamped to min",
			in:   &model.Nutriments{Fat: model.Float64(-500)},
			want: 0,
		},
		{
			name: "half rounds up",
			in:   &model.Nutriments{Energy: model.Float64(250)},
			want: 3,
		},
		{
			name: "just below half rounds down",
			in:   &model.Nutriments{Energy: model.Float64(249.9)},
			want: 2,
		},
		{
			name: "largest value below half rounds down",
			in:   &model.Nutriments{Energy: model.Float64(49.999999999999994)},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.in); got != tt.want {
				t.Fatalf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	n := &model.Nutriments{Energy: model.Float64(1234.5), Salt: model.Float64(1.2)}
	first := Score(n)
	for i := 0; i < 10; i++ {
		if got := Score(n); got != first {
			t.Fatalf("run %d: got %d, want %d", i, got, first)
		}
	}
}

func TestGradeAndVerdict(t *testing.T) {
	tests := []struct {
		score   int
		grade   string
		verdict string
	}{
		{100, "A", "good"},
		{80, "A", "good"},
		{79, "B", "good"},
		{50, "C", "good"},
		{49, "C", "bad"},
		{20, "D", "bad"},
		{0, "E", "bad"},
	}
	for _, tt := range tests {
		if got := Grade(tt.score); got != tt.grade {
			t.Errorf("Grade(%d) = %q, want %q", tt.score, got, tt.grade)
		}
		if got := Verdict(tt.score); got != tt.verdict {
			t.Errorf("Verdict(%d) = %q, want %q", tt.score, got, tt.verdict)
		}
	}
}

func TestBreakdown(t *testing.T) {
	p := &model.ProductPayload{
		Code:          "3046920022606",
		AdditivesTags: []string{"en:e322", "en:e476"},
		Nutriments: &model.Nutriments{
			Energy:   model.Float64(2252),
			Fat:      model.Float64(4),
			Sugars:   model.Float64(56.3),
			Proteins: model.Float64(6.3),
			Salt:     model.Float64(0.107),
		},
	}

	items := Breakdown(p)

	var keys []string
	for _, it := range items {
		keys = append(keys, it.Key)
	}
	want := []string{"proteins_100g", "salt_100g", "additives_tags", "energy_100g", "sugars_100g"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if !items[0].Good || items[len(items)-1].Good {
		t.Fatalf("expected good items first, got %+v", items)
	}
	if items[2].Value != 2 {
		t.Fatalf("additives count = %v, want 2", items[2].Value)
	}
}

func TestBreakdownWithoutNutriments(t *testing.T) {
	if items := Breakdown(&model.ProductPayload{Code: "1"}); len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
}
