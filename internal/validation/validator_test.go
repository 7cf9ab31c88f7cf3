// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}

type predictRequest struct {
	CustomerIDs []string `validate:"required,min=1,max=500,dive,required"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   predictRequest
		wantErr string
	}{
		{"valid", predictRequest{CustomerIDs: []string{"C1"}}, ""},
		{"missing", predictRequest{}, "CustomerIDs is required"},
		{"empty element", predictRequest{CustomerIDs: []string{"C1", ""}}, "is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateStruct() = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("Quantity", 5.0, "gte=1,lte=9"); err != nil {
		t.Errorf("ValidateVar(5) = %v, want nil", err)
	}
	err := ValidateVar("Quantity", 12.0, "gte=1,lte=9")
	if err == nil {
		t.Fatal("ValidateVar(12) = nil, want error")
	}
	if got := err.Error(); got != "Quantity must be less than or equal to 9" {
		t.Errorf("ValidateVar(12) = %q", got)
	}
}
