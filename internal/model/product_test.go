package model

import (
	"errors"
	"testing"
	"time"
)

func TestProductRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)
	in := Product{
		ID:        "abc",
		Barcode:   "3046920022606",
		Name:      "Nutella",
		Grade:     IntPtr(27),
		Image:     "https://images.example/nutella.jpg",
		ScannedAt: at,
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Product
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Barcode != in.Barcode || out.Name != in.Name || out.ID != in.ID || out.Image != in.Image {
		t.Fatalf("got %+v, want %+v", out, in)
	}
	if out.Grade == nil || *out.Grade != 27 {
		t.Fatalf("grade = %v, want 27", out.Grade)
	}
	if !out.ScannedAt.Equal(at) {
		t.Fatalf("scannedAt = %v, want %v", out.ScannedAt, at)
	}
}

func TestProductLegacyGrades(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int
	}{
		{"numeric", `{"barcode":"1","grade":42}`, IntPtr(42)},
		{"numeric string", `{"barcode":"1","grade":"73"}`, IntPtr(73)},
		{"letter", `{"barcode":"1","grade":"b"}`, nil},
		{"empty string", `{"barcode":"1","grade":""}`, nil},
		{"absent", `{"barcode":"1"}`, nil},
		{"above range", `{"barcode":"1","grade":1e300}`, IntPtr(100)},
		{"below range", `{"barcode":"1","grade":"-12"}`, IntPtr(0)},
		{"rounded", `{"barcode":"1","grade":"41.5"}`, IntPtr(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Product
			if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			switch {
			case tt.want == nil && p.Grade != nil:
				t.Fatalf("grade = %d, want nil", *p.Grade)
			case tt.want != nil && (p.Grade == nil || *p.Grade != *tt.want):
				t.Fatalf("grade = %v, want %d", p.Grade, *tt.want)
			}
		})
	}
}

func TestProductRejectsBadTimestamp(t *testing.T) {
	var p Product
	err := json.Unmarshal([]byte(`{"barcode":"1","scannedAt":"not a date"}`), &p)
	var malformed *MalformedDataError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedDataError, got %v", err)
	}
}

func TestNutrimentsAcceptNumericStrings(t *testing.T) {
	raw := `{"code":"1","nutriments":{"energy_100g":"2252","fat_100g":30.9,"salt_100g":"","unknown_100g":3}}`

	var p ProductPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Nutriments == nil {
		t.Fatal("nutriments missing")
	}
	if p.Nutriments.Energy == nil || *p.Nutriments.Energy != 2252 {
		t.Fatalf("energy = %v, want 2252", p.Nutriments.Energy)
	}
	if p.Nutriments.Fat == nil || *p.Nutriments.Fat != 30.9 {
		t.Fatalf("fat = %v, want 30.9", p.Nutriments.Fat)
	}
	if p.Nutriments.Sugars != nil {
		t.Fatalf("sugars = %v, want nil", *p.Nutriments.Sugars)
	}
}

func TestDisplayName(t *testing.T) {
	p := ProductPayload{GenericNameFr: "Pâte à tartiner"}
	if got := p.DisplayName(); got != "Pâte à tartiner" {
		t.Fatalf("DisplayName() = %q", got)
	}
	p.ProductName = "Nutella"
	if got := p.DisplayName(); got != "Nutella" {
		t.Fatalf("DisplayName() = %q", got)
	}
}

func TestLookupFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{&NetworkError{Barcode: "1", StatusCode: 503}, "network"},
		{&NotFoundError{Barcode: "1"}, "not_found"},
		{&MalformedDataError{Source: "payload", Err: errors.New("x")}, "malformed"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := LookupFailureKind(tt.err); got != tt.kind {
			t.Errorf("LookupFailureKind(%v) = %q, want %q", tt.err, got, tt.kind)
		}
		if got := IsLookupFailure(tt.err); got != (tt.kind != "unknown") {
			t.Errorf("IsLookupFailure(%v) = %v", tt.err, got)
		}
	}
}

func TestScanEvent(t *testing.T) {
	if !(ScanEvent{Data: "1", Type: "EAN13"}).SupportedSymbology() {
		t.Fatal("ean13 should be supported")
	}
	if (ScanEvent{Data: "1", Type: "qr"}).SupportedSymbology() {
		t.Fatal("qr should not be supported")
	}
	if got := (ScanEvent{Data: " 3046920022606 \n"}).Barcode(); got != "3046920022606" {
		t.Fatalf("Barcode() = %q", got)
	}
}
