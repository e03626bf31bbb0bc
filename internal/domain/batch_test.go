package domain

import "testing"

func TestCreateBatchRequestValidate(t *testing.T) {
	valid := CreateBatchRequest{
		Options: CompressOptions{
			InputMode: InputModeBinary,
			Format:    FormatWebP,
		},
		Records: []Record{
			{Binary: map[string]BinaryRef{"data": {ObjectKey: "uploads/b/0/data"}}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	empty := CreateBatchRequest{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	noRecords := CreateBatchRequest{
		Options: CompressOptions{InputMode: InputModeBase64, Format: FormatJPEG},
	}
	if err := noRecords.Validate(); err == nil {
		t.Fatal("expected validation error for empty record list")
	}

	badMode := valid
	badMode.Options.InputMode = "multipart"
	if err := badMode.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported input_mode")
	}

	badFormat := valid
	badFormat.Options.Format = "tiff"
	if err := badFormat.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported format")
	}

	badCap := valid
	badCap.Options.MaxInputMB = 1024
	if err := badCap.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range max_input_mb")
	}

	negativeResize := valid
	negativeResize.Options.Resize.Width = -10
	if err := negativeResize.Validate(); err == nil {
		t.Fatal("expected validation error for negative resize width")
	}
}

func TestCompressOptionsNormalizeDefaults(t *testing.T) {
	opts := CompressOptions{
		InputMode: " Binary ",
		Format:    " JPEG ",
	}
	opts.Normalize()

	if opts.InputMode != InputModeBinary {
		t.Fatalf("expected normalized input_mode %q, got %q", InputModeBinary, opts.InputMode)
	}
	if opts.Format != FormatJPEG {
		t.Fatalf("expected normalized format %q, got %q", FormatJPEG, opts.Format)
	}
	if opts.BinarySlot != DefaultSlotName || opts.Base64Field != DefaultSlotName || opts.OutputSlot != DefaultSlotName {
		t.Fatalf("expected slot defaults %q, got %q/%q/%q", DefaultSlotName, opts.BinarySlot, opts.Base64Field, opts.OutputSlot)
	}
	if opts.MaxInputMB != DefaultMaxInputMB {
		t.Fatalf("expected max_input_mb default %d, got %d", DefaultMaxInputMB, opts.MaxInputMB)
	}
	if opts.QualityValue() != DefaultQuality {
		t.Fatalf("expected quality default %d, got %d", DefaultQuality, opts.QualityValue())
	}

	zero := 0
	opts.Quality = &zero
	if opts.QualityValue() != 0 {
		t.Fatalf("expected explicit quality 0 to be honored, got %d", opts.QualityValue())
	}
}
