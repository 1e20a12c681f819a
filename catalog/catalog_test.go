package catalog

import (
	"errors"
	"strings"
	"testing"
)

func ratingPtr(v float64) *float64 { return &v }

func TestBookInputValidate(t *testing.T) {
	valid := BookInput{Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid input, got %v", err)
	}

	withRating := valid
	withRating.Rating = ratingPtr(8.5)
	if err := withRating.Validate(); err != nil {
		t.Errorf("expected valid input with rating, got %v", err)
	}

	tests := []struct {
		name   string
		modify func(*BookInput)
	}{
		{"empty title", func(in *BookInput) { in.Title = "" }},
		{"title too long", func(in *BookInput) { in.Title = strings.Repeat("x", 201) }},
		{"empty author", func(in *BookInput) { in.Author = "" }},
		{"author too long", func(in *BookInput) { in.Author = strings.Repeat("x", 101) }},
		{"empty genre", func(in *BookInput) { in.Genre = "" }},
		{"genre too long", func(in *BookInput) { in.Genre = strings.Repeat("x", 51) }},
		{"rating below zero", func(in *BookInput) { in.Rating = ratingPtr(-0.1) }},
		{"rating above ten", func(in *BookInput) { in.Rating = ratingPtr(10.1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			if err := in.Validate(); !errors.Is(err, ErrInvalidBook) {
				t.Errorf("expected ErrInvalidBook, got %v", err)
			}
		})
	}
}

func TestBookInputValidate_BoundaryLengths(t *testing.T) {
	in := BookInput{
		Title:  strings.Repeat("t", 200),
		Author: strings.Repeat("a", 100),
		Genre:  strings.Repeat("g", 50),
		Rating: ratingPtr(10),
	}
	if err := in.Validate(); err != nil {
		t.Errorf("expected boundary values to validate, got %v", err)
	}

	in.Rating = ratingPtr(0)
	if err := in.Validate(); err != nil {
		t.Errorf("expected zero rating to validate, got %v", err)
	}
}

func TestValidateRating(t *testing.T) {
	for _, rating := range []float64{0, 5.5, 10} {
		if err := ValidateRating(rating); err != nil {
			t.Errorf("rating %v: expected valid, got %v", rating, err)
		}
	}
	for _, rating := range []float64{-0.1, 10.1} {
		if err := ValidateRating(rating); !errors.Is(err, ErrInvalidBook) {
			t.Errorf("rating %v: expected ErrInvalidBook, got %v", rating, err)
		}
	}
}
